package worker

import (
	"context"

	"tunerelay/internal/logger"
	"tunerelay/internal/models"
	"tunerelay/internal/relay"
)

// RelayCommand is the bot command that triggers a relay.
const RelayCommand = "send"

type Admission string

const (
	Accepted  Admission = "accepted"
	Ignored   Admission = "ignored"
	Duplicate Admission = "duplicate"
)

type Relayer interface {
	Relay(ctx context.Context, req relay.Request) relay.Outcome
}

// Manager turns inbound updates into relay jobs on a shared dispatcher.
type Manager struct {
	relayer    Relayer
	dispatcher *Dispatcher
	ledger     Ledger
	botName    string
	log        logger.Logger
}

// NewManager builds a manager for the bot named botUsername. Commands
// addressed to any other bot are ignored.
func NewManager(relayer Relayer, ledger Ledger, botUsername string, cfg DispatcherConfig, log logger.Logger, observer JobObserver) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		relayer:    relayer,
		dispatcher: NewDispatcher(cfg, log, observer),
		ledger:     ledger,
		botName:    botUsername,
		log:        log,
	}
}

// Enqueue schedules a relay for upd when it carries the relay command.
// Updates without it are ignored; an update id seen before is a duplicate.
func (m *Manager) Enqueue(ctx context.Context, upd *models.Update) (Admission, error) {
	if upd == nil || upd.Message == nil || upd.Message.Command(m.botName) != RelayCommand {
		return Ignored, nil
	}
	if m.ledger != nil {
		fresh, err := m.ledger.MarkSeen(ctx, upd.UpdateID)
		if err != nil {
			// a broken ledger must not block relays
			m.log.Warn("update ledger unavailable", "update_id", upd.UpdateID, "err", err)
		} else if !fresh {
			return Duplicate, nil
		}
	}

	req := relay.Request{UpdateID: upd.UpdateID, Message: upd.Message}
	err := m.dispatcher.Submit(Job{
		UpdateID: upd.UpdateID,
		ChatID:   upd.Message.Chat.ID,
		Run: func(ctx context.Context) {
			m.relayer.Relay(ctx, req)
		},
	})
	if err != nil {
		// the update was not taken; let a redelivery, here or on another
		// replica, through the ledger again
		if m.ledger != nil {
			if ferr := m.ledger.Forget(ctx, upd.UpdateID); ferr != nil {
				m.log.Warn("update ledger forget failed", "update_id", upd.UpdateID, "err", ferr)
			}
		}
		return "", err
	}
	return Accepted, nil
}

// Shutdown stops accepting updates and drains running relays.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.dispatcher.Shutdown(ctx)
}
