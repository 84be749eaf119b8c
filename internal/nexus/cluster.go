// Package nexus talks to the backend search nodes: a sequential readiness
// probe and a concurrent, failure-tolerant search fan-out.
package nexus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nexus-bot/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultSearchTimeout = 30 * time.Second
	DefaultStatusTimeout = 5 * time.Second

	apiKeyHeader = "x-api-key"
	readyState   = "done"
	errorPrefix  = `{"error":`
	maxLineSize  = 1 << 20
)

type Options struct {
	APIKey        string
	SearchTimeout time.Duration
	StatusTimeout time.Duration
	Client        *http.Client
	Logger        *zap.Logger
}

type Cluster struct {
	nodes         []string
	apiKey        string
	searchTimeout time.Duration
	statusTimeout time.Duration
	client        *http.Client
	logger        *zap.Logger
}

func NewCluster(nodes []string, opts Options) *Cluster {
	c := &Cluster{
		apiKey:        opts.APIKey,
		searchTimeout: opts.SearchTimeout,
		statusTimeout: opts.StatusTimeout,
		client:        opts.Client,
		logger:        opts.Logger,
	}
	for _, n := range nodes {
		if n = strings.TrimRight(strings.TrimSpace(n), "/"); n != "" {
			c.nodes = append(c.nodes, n)
		}
	}
	if c.searchTimeout <= 0 {
		c.searchTimeout = DefaultSearchTimeout
	}
	if c.statusTimeout <= 0 {
		c.statusTimeout = DefaultStatusTimeout
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *Cluster) Nodes() []string {
	return append([]string(nil), c.nodes...)
}

func (c *Cluster) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	return req, nil
}

// CheckReady probes every node's status endpoint in order and returns the
// first node that is not ready, as a *NotReadyError, *HTTPStatusError or
// *UnreachableError.
func (c *Cluster) CheckReady(ctx context.Context) error {
	for _, node := range c.nodes {
		if err := c.checkNode(ctx, node); err != nil {
			c.logger.Warn("Node failed readiness check", zap.String("node", node), zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *Cluster) checkNode(ctx context.Context, node string) error {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, node+"/status")
	if err != nil {
		return &UnreachableError{Node: node, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &UnreachableError{Node: node, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &HTTPStatusError{Node: node, Status: resp.StatusCode}
	}

	var status struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return &UnreachableError{Node: node, Err: fmt.Errorf("decode status: %w", err)}
	}
	if status.State != readyState {
		return &NotReadyError{Node: node, State: status.State}
	}
	return nil
}

// Search sends query to every node at once and merges what comes back.
// A failing node contributes one failure entry and never affects the
// others. limit is the per-file line depth passed through to the nodes.
func (c *Cluster) Search(ctx context.Context, query string, limit int) ResultSet {
	collected := make([][]Entry, len(c.nodes))

	var wg sync.WaitGroup
	for i, node := range c.nodes {
		wg.Go(func() {
			collected[i] = c.searchNode(ctx, node, query, limit)
		})
	}
	wg.Wait()

	var rs ResultSet
	for _, entries := range collected {
		rs.Entries = append(rs.Entries, entries...)
	}
	return rs
}

func (c *Cluster) searchNode(ctx context.Context, node, query string, limit int) []Entry {
	started := time.Now()
	defer func() {
		metrics.NodeLatency.WithLabelValues(node).Observe(time.Since(started).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, node+"/search?"+params.Encode())
	if err != nil {
		return []Entry{c.unreachable(node, err)}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return []Entry{c.unreachable(node, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		metrics.NodeFailures.WithLabelValues(node, "http").Inc()
		c.logger.Warn("Node returned non-OK status", zap.String("node", node), zap.Int("status", resp.StatusCode))
		return []Entry{{
			Node:    node,
			Text:    fmt.Sprintf("Error from %s: HTTP %d", node, resp.StatusCode),
			Failure: true,
		}}
	}

	entries, err := readStream(node, resp.Body)
	if err != nil {
		entries = append(entries, c.unreachable(node, err))
	}
	return entries
}

func (c *Cluster) unreachable(node string, err error) Entry {
	metrics.NodeFailures.WithLabelValues(node, "unreachable").Inc()
	c.logger.Warn("Failed to reach node", zap.String("node", node), zap.Error(err))
	return Entry{
		Node:    node,
		Text:    fmt.Sprintf("Failed to reach %s: %v", node, err),
		Failure: true,
	}
}

// readStream splits a node's body into trimmed, non-empty lines. Lines in
// the structured error shape become failure entries; error-shaped lines
// that do not decode are kept as ordinary text.
func readStream(node string, body io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, errorPrefix) {
			if be, ok := parseBackendError(node, text); ok {
				entries = append(entries, Entry{Node: node, Text: be.Error(), Failure: true})
				continue
			}
		}
		entries = append(entries, Entry{Node: node, Text: text})
	}
	return entries, scanner.Err()
}

func parseBackendError(node, line string) (*BackendError, bool) {
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &payload); err != nil || payload.Error == nil {
		return nil, false
	}
	return &BackendError{Node: node, Message: *payload.Error}, true
}
