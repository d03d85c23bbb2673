package discord

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

// sniffLen is how much of the payload is peeked for content detection.
const sniffLen = 3072

// Webhook posts files into a channel through an incoming-webhook URL.
type Webhook struct {
	http *resty.Client
	url  string
}

func NewWebhook(webhookURL string, timeout time.Duration) *Webhook {
	httpClient := resty.New().
		SetHeader("User-Agent", "tunerelay/1.0")
	if timeout > 0 {
		httpClient.SetTimeout(timeout)
	}
	return &Webhook{http: httpClient, url: webhookURL}
}

// IsAccepted reports whether the webhook status means the post went through.
func IsAccepted(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

// Upload sends content and the file as multipart form data and returns the
// HTTP status. Transport failures are returned as errors; an unexpected
// status is not an error.
func (w *Webhook) Upload(ctx context.Context, content, fileName string, r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("discord upload: read file: %w", err)
	}
	contentType := mimetype.Detect(head).String()

	resp, err := w.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"content": content}).
		SetMultipartField("file", fileName, contentType, br).
		Post(w.url)
	if err != nil {
		// webhook URLs carry their token in the path
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			err = urlErr.Err
		}
		return 0, fmt.Errorf("discord upload: %w", err)
	}
	return resp.StatusCode(), nil
}
