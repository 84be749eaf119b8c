package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nexus-bot/internal/admission"
	"nexus-bot/internal/database/memory"
	"nexus-bot/internal/telegram"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []telegram.Update
}

func (h *recordingHandler) HandleUpdate(_ context.Context, u telegram.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	adm := admission.New(4)
	require.NoError(t, adm.Acquire(context.Background()))
	defer adm.Release()

	srv := NewServer(memory.New(), nil, adm, "", zaptest.NewLogger(t)).Routes()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, &AdmissionStatus{Capacity: 4, InFlight: 1}, resp.Admission)
}

func TestHealthDegraded(t *testing.T) {
	srv := NewServer(downStore{}, nil, nil, "", zaptest.NewLogger(t)).Routes()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp.Status)
	require.Equal(t, "unreachable", resp.Database)
	require.Nil(t, resp.Admission)
}

func TestWebhook(t *testing.T) {
	h := &recordingHandler{}
	srv := NewServer(memory.New(), h, nil, "s3cret", zaptest.NewLogger(t)).Routes()

	body := `{"update_id":77,"message":{"message_id":1,"from":{"id":5,"is_bot":false,"first_name":"A"},"chat":{"id":5,"type":"private"},"date":0,"text":"/help"}}`

	t.Run("MissingSecret", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
		req.Header.Set(secretHeader, "nope")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("BadPayload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{"))
		req.Header.Set(secretHeader, "s3cret")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
		req.Header.Set(secretHeader, "s3cret")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	require.Len(t, h.updates, 1)
	require.EqualValues(t, 77, h.updates[0].UpdateID)
	require.Equal(t, "/help", h.updates[0].Message.Text)
}

func TestWebhookNotMountedWhenPolling(t *testing.T) {
	srv := NewServer(memory.New(), nil, nil, "", zaptest.NewLogger(t)).Routes()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{}")))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(memory.New(), nil, nil, "", zaptest.NewLogger(t)).Routes()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `nexus_bot_http_request_duration_seconds_count{method="GET",route="/health",status="200"}`)
}
