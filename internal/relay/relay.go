// Package relay forwards one chat attachment to a webhook: resolve it,
// check its size, download it into a private scratch file, upload it, and
// report each step through a single edited status message.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"tunerelay/internal/discord"
	"tunerelay/internal/logger"
	"tunerelay/internal/models"
)

// failureReplyTimeout bounds the failure reply, which outlives a cancelled relay.
const failureReplyTimeout = 10 * time.Second

var (
	ErrNoAttachment       = errors.New("relay: no attachment found")
	ErrAttachmentTooLarge = errors.New("relay: attachment too large")
	ErrRemoteRejected     = errors.New("relay: webhook rejected upload")
)

// Messenger posts and edits conversation messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, replyTo int64, text string) (*models.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// Source fetches attachment bytes from the chat platform.
type Source interface {
	Download(ctx context.Context, fileID string, w io.Writer, limit int64) (int64, error)
}

// Sink receives the relayed file.
type Sink interface {
	Upload(ctx context.Context, content, fileName string, r io.Reader) (int, error)
}

// Observer is notified once per finished relay.
type Observer interface {
	ObserveRelay(outcome string, bytes int64, elapsed time.Duration)
}

type OutcomeKind string

const (
	OutcomeDelivered          OutcomeKind = "delivered"
	OutcomeNoAttachment       OutcomeKind = "no_attachment"
	OutcomeAttachmentTooLarge OutcomeKind = "too_large"
	OutcomeTransferFailure    OutcomeKind = "transfer_failure"
	OutcomeRemoteRejected     OutcomeKind = "remote_rejected"
)

// Outcome describes how a relay ended. Err is nil only for OutcomeDelivered.
type Outcome struct {
	Kind       OutcomeKind
	Attachment *models.Attachment
	FileName   string
	SizeMB     float64
	Bytes      int64
	StatusCode int
	Err        error
}

// Request is one inbound /send command.
type Request struct {
	UpdateID int64
	Message  *models.Message
}

type Options struct {
	MaxFileMB       float64
	ScratchDir      string
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	Fs              afero.Fs
	Logger          logger.Logger
	Observer        Observer
}

// Relayer runs relays. It holds no per-relay state and is safe for
// concurrent use.
type Relayer struct {
	messenger       Messenger
	source          Source
	sink            Sink
	fs              afero.Fs
	scratchDir      string
	maxMB           float64
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	log             logger.Logger
	observer        Observer
}

func New(messenger Messenger, source Source, sink Sink, opts Options) *Relayer {
	r := &Relayer{
		messenger:       messenger,
		source:          source,
		sink:            sink,
		fs:              opts.Fs,
		scratchDir:      opts.ScratchDir,
		maxMB:           opts.MaxFileMB,
		downloadTimeout: opts.DownloadTimeout,
		uploadTimeout:   opts.UploadTimeout,
		log:             opts.Logger,
		observer:        opts.Observer,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.scratchDir == "" {
		r.scratchDir = filepath.Join(os.TempDir(), "tunerelay")
	}
	if r.maxMB <= 0 {
		r.maxMB = 25
	}
	if r.log == nil {
		r.log = logger.Default()
	}
	return r
}

// Relay handles one request to completion. It never panics on platform
// errors and always leaves the scratch directory as it found it.
func (r *Relayer) Relay(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := r.relay(ctx, req)
	if r.observer != nil {
		r.observer.ObserveRelay(string(out.Kind), out.Bytes, time.Since(start))
	}
	return out
}

func (r *Relayer) relay(ctx context.Context, req Request) Outcome {
	msg := req.Message
	if msg == nil {
		return Outcome{Kind: OutcomeNoAttachment, Err: ErrNoAttachment}
	}
	log := r.log.With("update_id", req.UpdateID, "chat_id", msg.Chat.ID)

	att := ResolveAttachment(msg)
	if att == nil {
		r.reply(ctx, log, msg, textHelp)
		return Outcome{Kind: OutcomeNoAttachment, Err: ErrNoAttachment}
	}
	sizeMB := SizeMB(att.FileSize)
	out := Outcome{Attachment: att, SizeMB: sizeMB, FileName: att.FileName}
	if out.FileName == "" {
		out.FileName = defaultFileName
	}
	if sizeMB > r.maxMB {
		r.reply(ctx, log, msg, fmt.Sprintf(textTooLargeFmt, sizeMB, r.maxMB))
		out.Kind = OutcomeAttachmentTooLarge
		out.Err = fmt.Errorf("%w: %.2f MB", ErrAttachmentTooLarge, sizeMB)
		return out
	}

	log = log.With("file", out.FileName, "kind", att.Kind)
	status := NewStatusTracker(r.messenger, msg.Chat.ID, msg.MessageID)
	code, n, err := r.transfer(ctx, log, req, att, out.FileName, status)
	out.Bytes = n
	if err != nil {
		log.Error("relay failed", "state", status.State(), "err", err)
		// the failure may be the cancellation itself; still tell the user
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureReplyTimeout)
		r.reply(rctx, log, msg, textFailure)
		cancel()
		out.Kind = OutcomeTransferFailure
		out.Err = err
		return out
	}

	out.StatusCode = code
	if discord.IsAccepted(code) {
		out.Kind = OutcomeDelivered
		err = status.Advance(ctx, StateSucceeded)
	} else {
		out.Kind = OutcomeRemoteRejected
		out.Err = fmt.Errorf("%w: status %d", ErrRemoteRejected, code)
		err = status.Fail(ctx, code)
	}
	if err != nil {
		log.Warn("final status update failed", "err", err)
	}
	log.Info("relay finished", "outcome", out.Kind, "status", code, "bytes", n)
	return out
}

// transfer covers the steps whose failure is reported as a fresh reply. The
// scratch file is released before it returns.
func (r *Relayer) transfer(ctx context.Context, log logger.Logger, req Request, att *models.Attachment, fileName string, status *StatusTracker) (int, int64, error) {
	if err := status.Advance(ctx, StateDownloading); err != nil {
		return 0, 0, err
	}

	scratch, err := acquireScratch(r.fs, r.scratchDir, req.UpdateID, fileName)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := scratch.Release(); err != nil {
			log.Debug("scratch release failed", "path", scratch.Path(), "err", err)
		}
	}()

	dctx, cancel := withTimeout(ctx, r.downloadTimeout)
	n, err := r.source.Download(dctx, att.FileID, scratch, int64(r.maxMB*1024*1024))
	cancel()
	if err != nil {
		return 0, n, fmt.Errorf("download %s: %w", att.FileID, err)
	}
	if err := scratch.Rewind(); err != nil {
		return 0, n, fmt.Errorf("rewind scratch: %w", err)
	}

	if err := status.Advance(ctx, StateUploading); err != nil {
		return 0, n, err
	}
	sender := req.Message.SenderName()
	if sender == "" {
		sender = unknownSender
	}
	uctx, cancel := withTimeout(ctx, r.uploadTimeout)
	defer cancel()
	code, err := r.sink.Upload(uctx, fmt.Sprintf(textSenderFmt, sender), fileName, scratch)
	if err != nil {
		return 0, n, fmt.Errorf("upload %s: %w", fileName, err)
	}
	return code, n, nil
}

func (r *Relayer) reply(ctx context.Context, log logger.Logger, msg *models.Message, text string) {
	if _, err := r.messenger.SendMessage(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
		log.Warn("reply failed", "err", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
