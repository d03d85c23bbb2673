package models

import (
	"strings"
	"unicode/utf16"
)

// Update is an inbound event delivered to the bot webhook.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Message captures the subset of a chat message the relay needs.
type Message struct {
	MessageID       int64           `json:"message_id"`
	From            *User           `json:"from,omitempty"`
	Chat            Chat            `json:"chat"`
	Date            int64           `json:"date"`
	Text            string          `json:"text,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty"`
	ReplyToMessage  *Message        `json:"reply_to_message,omitempty"`
	Audio           *Audio          `json:"audio,omitempty"`
	Document        *Document       `json:"document,omitempty"`
}

// Command returns the bot command that opens the text or caption, without
// the leading slash. A command addressed with an @suffix counts only when the
// suffix is botUsername; otherwise, or when there is no command, it is empty.
func (m *Message) Command(botUsername string) string {
	if m == nil {
		return ""
	}
	if cmd, ok := leadingCommand(m.Text, m.Entities, botUsername); ok {
		return cmd
	}
	cmd, _ := leadingCommand(m.Caption, m.CaptionEntities, botUsername)
	return cmd
}

// leadingCommand reports whether text opens with a bot command and returns
// it. A command addressed to another bot is found but returned empty.
func leadingCommand(text string, entities []MessageEntity, botUsername string) (string, bool) {
	for _, e := range entities {
		if e.Type != "bot_command" || e.Offset != 0 {
			continue
		}
		// entity offsets count UTF-16 code units
		units := utf16.Encode([]rune(text))
		if e.Length <= 1 || e.Length > len(units) {
			return "", false
		}
		cmd := string(utf16.Decode(units[1:e.Length]))
		if at := strings.IndexByte(cmd, '@'); at >= 0 {
			target := cmd[at+1:]
			cmd = cmd[:at]
			want := strings.TrimPrefix(botUsername, "@")
			if want == "" || !strings.EqualFold(target, want) {
				return "", true
			}
		}
		return strings.ToLower(cmd), true
	}
	return "", false
}

// SenderName is the author's first name, as shown in relayed posts.
func (m *Message) SenderName() string {
	if m == nil || m.From == nil {
		return ""
	}
	return m.From.FirstName
}
