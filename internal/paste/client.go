// Package paste uploads result text to a burn-after-read paste host.
package paste

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second
	title          = "Nexus API Results"
)

// ErrUnavailable covers every upload failure. Callers fall back to an
// inline preview.
var ErrUnavailable = errors.New("paste host unavailable")

type request struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Language      string `json:"language"`
	IsPublic      bool   `json:"is_public"`
	BurnAfterRead bool   `json:"burn_after_read"`
}

type response struct {
	ID string `json:"id"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Create posts content as a public burn-after-read paste and returns its
// link. Any failure is reported as ErrUnavailable.
func (c *Client) Create(ctx context.Context, content string) (string, error) {
	link, err := c.create(ctx, content)
	if err != nil {
		c.logger.Error("Failed to create paste", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return link, nil
}

func (c *Client) create(ctx context.Context, content string) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("no paste host configured")
	}

	body, err := json.Marshal(request{
		Title:         title,
		Content:       content,
		Language:      "plaintext",
		IsPublic:      true,
		BurnAfterRead: true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/paste", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var created response
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("response carried no paste id")
	}
	return c.baseURL + "/" + created.ID, nil
}
