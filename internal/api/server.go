// Package api is the bot's HTTP surface: Telegram webhook intake, health
// and Prometheus metrics.
package api

import (
	"context"
	"net/http"

	"nexus-bot/internal/telegram"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const WebhookPath = "/telegram/webhook"

type Pinger interface {
	Ping(ctx context.Context) error
}

type AdmissionStats interface {
	Capacity() int
	InFlight() int
	Waiting() int
}

type Server struct {
	store     Pinger
	updates   telegram.Handler
	admission AdmissionStats
	secret    string
	logger    *zap.Logger
}

// NewServer wires the handlers. updates may be nil when the bot long-polls
// instead of receiving webhooks; the webhook route is not mounted then.
func NewServer(store Pinger, updates telegram.Handler, admission AdmissionStats, webhookSecret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:     store,
		updates:   updates,
		admission: admission,
		secret:    webhookSecret,
		logger:    logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/health", s.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	if s.updates != nil {
		r.With(s.WebhookSecretMiddleware).Post(WebhookPath, s.WebhookHandler)
	}

	return r
}
