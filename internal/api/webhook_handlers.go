package api

import (
	"encoding/json"
	"net/http"

	"nexus-bot/internal/metrics"
	"nexus-bot/internal/telegram"

	"go.uber.org/zap"
)

const maxUpdateSize = 1 << 20

// WebhookHandler accepts one update per request. The bot processes it in
// the background, so Telegram gets its 200 right away and does not retry.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&update); err != nil {
		s.logger.Warn("Failed to decode webhook update", zap.Error(err))
		http.Error(w, "Invalid update payload", http.StatusBadRequest)
		return
	}

	metrics.Updates.WithLabelValues("webhook").Inc()
	s.updates.HandleUpdate(r.Context(), update)

	w.WriteHeader(http.StatusOK)
}
