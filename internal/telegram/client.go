// Package telegram is a small Bot API client with webhook and long-poll
// update intake.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAPIURL = "https://api.telegram.org"

	requestTimeout = 30 * time.Second
	parseModeHTML  = "HTML"
)

var allowedUpdates = []string{"message"}

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(token, apiURL string, logger *zap.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(apiURL, "/"),
		// Deadlines come from the request context; long polls outlive
		// any fixed client timeout.
		http:   &http.Client{},
		logger: logger,
	}
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read: %w", method, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: "malformed response"}
	}
	if !decoded.OK {
		apiErr := &APIError{Method: method, Code: decoded.ErrorCode, Description: decoded.Description}
		if decoded.Parameters != nil {
			apiErr.RetryAfter = time.Duration(decoded.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// SendMessage sends HTML text with link previews off. A non-zero replyTo
// threads the message under that message when it still exists.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (*Message, error) {
	req := sendMessageRequest{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          parseModeHTML,
		LinkPreviewOptions: &linkPreviewOptions{IsDisabled: true},
	}
	if replyTo != 0 {
		req.ReplyParameters = &replyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Send is SendMessage without threading, for background senders.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendMessage(ctx, chatID, text, 0)
	return err
}

// EditMessageText replaces the text of a message the bot sent. Editing to
// identical content is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	err := c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:             chatID,
		MessageID:          messageID,
		Text:               text,
		ParseMode:          parseModeHTML,
		LinkPreviewOptions: &linkPreviewOptions{IsDisabled: true},
	}, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	}, nil)
}

// DeleteWebhook is required before getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil)
}

// GetUpdates long-polls for up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+requestTimeout)
	defer cancel()

	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: allowedUpdates,
	}, &updates)
	return updates, err
}
