package relay

// User-facing copy posted back into the conversation.
const (
	textHelp        = "No music file found. Please reply to an audio file with /send or use the command in the caption."
	textTooLargeFmt = "Sorry, file size is %.2f MB, which exceeds the Discord %gMB limit."
	textDownloading = "Downloading..."
	textUploading   = "Uploading to Discord..."
	textSucceeded   = "Successfully sent to Discord."
	textRejectedFmt = "Discord Error: %d"
	textFailure     = "An error occurred. Check console."
	textSenderFmt   = "New Music Sent by: %s"
	defaultFileName = "music.mp3"
	unknownSender   = "unknown"
)
