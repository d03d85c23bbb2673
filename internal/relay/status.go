package relay

import (
	"context"
	"errors"
	"fmt"
)

// State is a step of the in-place status message.
type State int

const (
	StateCreated State = iota
	StateDownloading
	StateUploading
	StateSucceeded
	StateFailed
)

var ErrInvalidTransition = errors.New("relay: invalid status transition")

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateDownloading:
		return "downloading"
	case StateUploading:
		return "uploading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateCreated:     {StateDownloading},
	StateDownloading: {StateUploading},
	StateUploading:   {StateSucceeded, StateFailed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusTracker owns one status message for one relay. The first transition
// posts it as a reply to the trigger; every later transition edits it.
type StatusTracker struct {
	messenger Messenger
	chatID    int64
	replyTo   int64
	messageID int64
	state     State
}

func NewStatusTracker(messenger Messenger, chatID, replyTo int64) *StatusTracker {
	return &StatusTracker{messenger: messenger, chatID: chatID, replyTo: replyTo}
}

func (t *StatusTracker) State() State { return t.state }

// MessageID is zero until the status message has been posted.
func (t *StatusTracker) MessageID() int64 { return t.messageID }

// Advance moves to next, rendering its text. Failed needs a status code,
// use Fail instead.
func (t *StatusTracker) Advance(ctx context.Context, next State) error {
	if next == StateFailed {
		return fmt.Errorf("%w: %s -> %s without status code", ErrInvalidTransition, t.state, next)
	}
	return t.transition(ctx, next, statusText(next, 0))
}

// Fail records a rejected upload and shows the received status code.
func (t *StatusTracker) Fail(ctx context.Context, statusCode int) error {
	return t.transition(ctx, StateFailed, statusText(StateFailed, statusCode))
}

func (t *StatusTracker) transition(ctx context.Context, next State, text string) error {
	if !canTransition(t.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, next)
	}
	if t.messageID == 0 {
		msg, err := t.messenger.SendMessage(ctx, t.chatID, t.replyTo, text)
		if err != nil {
			return fmt.Errorf("post status %s: %w", next, err)
		}
		t.messageID = msg.MessageID
	} else if err := t.messenger.EditMessageText(ctx, t.chatID, t.messageID, text); err != nil {
		return fmt.Errorf("edit status %s: %w", next, err)
	}
	t.state = next
	return nil
}

func statusText(s State, statusCode int) string {
	switch s {
	case StateDownloading:
		return textDownloading
	case StateUploading:
		return textUploading
	case StateSucceeded:
		return textSucceeded
	case StateFailed:
		return fmt.Sprintf(textRejectedFmt, statusCode)
	default:
		return ""
	}
}
