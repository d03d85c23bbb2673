package models

type Audio struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	Performer    string `json:"performer,omitempty"`
	Title        string `json:"title,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// File is the result of getFile: a short-lived download locator.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

type AttachmentKind string

const (
	KindAudio    AttachmentKind = "audio"
	KindDocument AttachmentKind = "document"
)

// Attachment is the uniform view of an audio or document attachment.
type Attachment struct {
	Kind         AttachmentKind
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
	FileSize     int64
}

// AudioAttachment returns the message's audio as an Attachment, or nil.
func (m *Message) AudioAttachment() *Attachment {
	if m == nil || m.Audio == nil {
		return nil
	}
	a := m.Audio
	return &Attachment{
		Kind:         KindAudio,
		FileID:       a.FileID,
		FileUniqueID: a.FileUniqueID,
		FileName:     a.FileName,
		MimeType:     a.MimeType,
		FileSize:     a.FileSize,
	}
}

// DocumentAttachment returns the message's document as an Attachment, or nil.
func (m *Message) DocumentAttachment() *Attachment {
	if m == nil || m.Document == nil {
		return nil
	}
	d := m.Document
	return &Attachment{
		Kind:         KindDocument,
		FileID:       d.FileID,
		FileUniqueID: d.FileUniqueID,
		FileName:     d.FileName,
		MimeType:     d.MimeType,
		FileSize:     d.FileSize,
	}
}
