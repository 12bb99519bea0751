// Package rest exposes the run's observability surface: live progress,
// segment history and Prometheus metrics.
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reolink-tools/daygrab/internal/downloader"
	"github.com/reolink-tools/daygrab/internal/logctx"
	"github.com/reolink-tools/daygrab/internal/storage"
	"github.com/reolink-tools/daygrab/internal/telemetry"
)

const defaultSegmentLimit = 50

// ProgressSource is anything that can report download progress.
type ProgressSource interface {
	Snapshot() downloader.Progress
}

type StatusHandler struct {
	progress  ProgressSource
	journal   storage.SegmentReadRepository
	telemetry *telemetry.Telemetry
}

// NewStatusHandler creates the handler behind the status server.
func NewStatusHandler(progress ProgressSource, journal storage.SegmentReadRepository, t *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{
		progress:  progress,
		journal:   journal,
		telemetry: t,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)

	if h.telemetry != nil {
		r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)
	}

	r.Get("/healthz", h.HandleHealth)
	r.Get("/status", h.HandleStatus)
	r.Get("/segments", h.HandleSegments)

	if h.telemetry != nil {
		r.Handle("/metrics", h.telemetry.Handler())
	}

	return r
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

// HandleStatus reports the orchestrator's current run snapshot.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.progress.Snapshot())
}

// HandleSegments lists the most recent journaled segment results.
func (h *StatusHandler) HandleSegments(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	limit := defaultSegmentLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)

			return
		}

		limit = parsed
	}

	segments, err := h.journal.GetSegments(limit)
	if err != nil {
		logger.Error("failed to read segment journal", "err", err)
		http.Error(w, "failed to read segment journal", http.StatusInternalServerError)

		return
	}

	if segments == nil {
		segments = []storage.SegmentRecord{}
	}

	writeJSON(w, r, map[string]any{"segments": segments})
}

func writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
