// Package server exposes the forward sync path as a webhook receiver, for
// deployments that run the engine as a service instead of an Actions step.
package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mirrorops/issuesync/internal/engine"
	"github.com/mirrorops/issuesync/internal/event"
)

// Handler verifies and dispatches webhook deliveries to the sync engine.
type Handler struct {
	secret string
	engine *engine.Engine
	logger zerolog.Logger
}

// NewHandler builds a webhook handler.
func NewHandler(secret string, eng *engine.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		secret: secret,
		engine: eng,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Router wires the webhook and health endpoints.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", h.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		h.logger.Warn().Err(err).Msg("rejected delivery")
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !VerifySignature(body, signature, h.secret) {
		h.logger.Warn().Msg("rejected delivery: signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	ev, err := event.Parse(eventName, body)
	if err != nil {
		// Unsupported entities and actions are acknowledged, not failed: the
		// delivery was valid, the engine just has nothing to do with it.
		if errors.Is(err, event.ErrMergeRequest) || errors.Is(err, event.ErrUnsupportedAction) {
			h.logger.Info().Str("event", eventName).Err(err).Msg("delivery skipped")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		h.logger.Error().Err(err).Msg("bad delivery payload")
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Apply(r.Context(), ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("sync failed")
		http.Error(w, "sync failed", http.StatusBadGateway)
		return
	}

	h.logger.Info().
		Str("event", string(ev.Type)).
		Str("outcome", string(result.Outcome)).
		Int("work_item", result.WorkItemID).
		Msg("delivery processed")
	w.WriteHeader(http.StatusOK)
}
