package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

const readinessTimeout = 2 * time.Second

// Health serves the root greeting and the liveness and readiness probes.
type Health struct {
	pingers map[string]model.Pinger
	logger  *logger.Logger
}

// NewHealth creates a Health handler that checks every pinger on /readyz.
func NewHealth(pingers map[string]model.Pinger, logger *logger.Logger) *Health {
	return &Health{pingers: pingers, logger: logger}
}

func (h *Health) Hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World!"))
}

func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health handler: dependency not ready",
				"dependency", name,
				"error", err.Error())
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
