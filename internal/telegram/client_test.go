package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type call struct {
	method string
	body   map[string]any
}

// fakeAPI answers Bot API calls from a table keyed by method name.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]
	if len(parts) < 3 || parts[1] != "bottest-token" {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, call{method, body})
	reply, ok := f.replies[method]
	f.mu.Unlock()

	if !ok {
		reply = `{"ok":true,"result":true}`
	}
	fmt.Fprint(w, reply)
}

func (f *fakeAPI) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newFake(t *testing.T, replies map[string]string) (*fakeAPI, *Client) {
	api := &fakeAPI{replies: replies}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, NewClient("test-token", srv.URL, zaptest.NewLogger(t))
}

func TestGetMe(t *testing.T) {
	_, c := newFake(t, map[string]string{
		"getMe": `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Nexus","username":"nexus_bot"}}`,
	})

	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, &User{ID: 42, IsBot: true, FirstName: "Nexus", Username: "nexus_bot"}, me)
}

func TestSendMessage(t *testing.T) {
	api, c := newFake(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":7,"chat":{"id":5,"type":"private"},"text":"hi"}}`,
	})

	msg, err := c.SendMessage(context.Background(), 5, "<b>hi</b>", 3)
	require.NoError(t, err)
	require.Equal(t, 7, msg.MessageID)

	got := api.last()
	require.Equal(t, "sendMessage", got.method)
	require.EqualValues(t, 5, got.body["chat_id"])
	require.Equal(t, "HTML", got.body["parse_mode"])
	require.Equal(t, map[string]any{"is_disabled": true}, got.body["link_preview_options"])
	require.Equal(t, map[string]any{"message_id": float64(3), "allow_sending_without_reply": true}, got.body["reply_parameters"])

	require.NoError(t, c.Send(context.Background(), 5, "plain"))
	_, threaded := api.last().body["reply_parameters"]
	require.False(t, threaded)
}

func TestAPIError(t *testing.T) {
	_, c := newFake(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`,
	})

	_, err := c.SendMessage(context.Background(), 1, "x", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 429, apiErr.Code)
	require.Equal(t, 7*time.Second, apiErr.RetryAfter)
	require.Equal(t, "sendMessage", apiErr.Method)
}

func TestEditNotModifiedIsIgnored(t *testing.T) {
	_, c := newFake(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`,
	})
	require.NoError(t, c.EditMessageText(context.Background(), 1, 2, "same"))
}

func TestEditError(t *testing.T) {
	_, c := newFake(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`,
	})
	require.Error(t, c.EditMessageText(context.Background(), 1, 2, "x"))
}

func TestTransportErrorHidesToken(t *testing.T) {
	c := NewClient("super-secret", "http://127.0.0.1:1", zaptest.NewLogger(t))
	err := c.Send(context.Background(), 1, "x")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "super-secret")
}

func TestSetWebhook(t *testing.T) {
	api, c := newFake(t, nil)
	require.NoError(t, c.SetWebhook(context.Background(), "https://bot.example/telegram/webhook", "s3cret"))

	got := api.last()
	require.Equal(t, "setWebhook", got.method)
	require.Equal(t, "https://bot.example/telegram/webhook", got.body["url"])
	require.Equal(t, "s3cret", got.body["secret_token"])
	require.Equal(t, []any{"message"}, got.body["allowed_updates"])
}
