package relay

import "tunerelay/internal/models"

// ResolveAttachment picks the attachment a /send command refers to: the
// replied-to message's audio, then its document, then the trigger's own
// audio, then its own document.
func ResolveAttachment(msg *models.Message) *models.Attachment {
	if msg == nil {
		return nil
	}
	candidates := []func() *models.Attachment{
		msg.ReplyToMessage.AudioAttachment,
		msg.ReplyToMessage.DocumentAttachment,
		msg.AudioAttachment,
		msg.DocumentAttachment,
	}
	for _, next := range candidates {
		if att := next(); att != nil {
			return att
		}
	}
	return nil
}

// SizeMB converts a byte count to mebibytes.
func SizeMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
