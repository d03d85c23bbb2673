// Package telegram is a small Bot API client covering the calls the relay
// makes: file retrieval, replies, in-place edits and webhook registration.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tunerelay/internal/models"
)

const defaultAPIURL = "https://api.telegram.org"

// ErrFileTooLarge is returned when a download exceeds the caller's byte limit.
var ErrFileTooLarge = errors.New("telegram: file exceeds download limit")

// APIError is a Bot API call that came back with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type envelope[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type Options struct {
	APIURL string
	Token  string
	// Timeout bounds each Bot API method call. File downloads are bounded
	// only by the caller's context.
	Timeout time.Duration
}

// Client talks to the Bot API over resty.
type Client struct {
	http        *resty.Client
	apiURL      string
	token       string
	callTimeout time.Duration
}

func NewClient(opts Options) *Client {
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	httpClient := resty.New().
		SetHeader("User-Agent", "tunerelay/1.0")
	return &Client{http: httpClient, apiURL: apiURL, token: opts.Token, callTimeout: opts.Timeout}
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
}

func (c *Client) fileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, c.token, strings.TrimLeft(filePath, "/"))
}

func call[T any](ctx context.Context, c *Client, method string, payload any) (T, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	var out envelope[T]
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.methodURL(method))
	if err != nil {
		// the request URL embeds the token; keep it out of the error
		var zero T
		return zero, fmt.Errorf("telegram %s: %w", method, unwrapURLError(err))
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		var zero T
		return zero, fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode(), err)
	}
	if !out.OK {
		var zero T
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode()
		}
		return zero, &APIError{Method: method, Code: code, Description: out.Description}
	}
	return out.Result, nil
}

// GetFile resolves a file identifier into a download locator.
func (c *Client) GetFile(ctx context.Context, fileID string) (*models.File, error) {
	file, err := call[models.File](ctx, c, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}
	return &file, nil
}

// Download streams the file identified by fileID into w. When limit is
// positive, a body longer than limit bytes fails with ErrFileTooLarge.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer, limit int64) (int64, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return 0, err
	}
	if limit > 0 && file.FileSize > limit {
		return 0, ErrFileTooLarge
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.fileURL(file.FilePath))
	if err != nil {
		return 0, fmt.Errorf("telegram download: %w", unwrapURLError(err))
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("telegram download: unexpected status %d", resp.StatusCode())
	}

	var src io.Reader = body
	if limit > 0 {
		src = io.LimitReader(body, limit+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("telegram download: %w", err)
	}
	if limit > 0 && n > limit {
		return n, ErrFileTooLarge
	}
	return n, nil
}

// SendMessage posts text into chatID, replying to replyTo when non-zero.
func (c *Client) SendMessage(ctx context.Context, chatID, replyTo int64, text string) (*models.Message, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
		payload["allow_sending_without_reply"] = true
	}
	msg, err := call[models.Message](ctx, c, "sendMessage", payload)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a message the bot sent earlier.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

// SetWebhook points update delivery at webhookURL. A non-empty secret is echoed by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	_, err := call[bool](ctx, c, "setWebhook", payload)
	return err
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	me, err := call[models.User](ctx, c, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	return &me, nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
