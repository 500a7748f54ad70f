// Package api holds the HTTP handlers: the telephony webhooks that drive the
// call dialogue and the REST surface for evaluations and dispatch.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/GitHub-Roomie/cobranza/internal/dialogue"
	"github.com/GitHub-Roomie/cobranza/internal/reconcile"
	"github.com/GitHub-Roomie/cobranza/internal/storage"
	"github.com/GitHub-Roomie/cobranza/internal/telephony"
)

// CallPlacer creates outbound calls.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req telephony.CallRequest) (*telephony.Call, error)
}

// Config carries the handler-level settings.
type Config struct {
	Voice         telephony.VoiceConfig
	PublicBaseURL string
	NotifyURL     string

	// Presence flags surfaced by the health endpoint.
	TwilioConfigured bool
	OpenAIConfigured bool
}

// Handler wires the HTTP surface to the domain components.
type Handler struct {
	controller *dialogue.Controller
	sessions   *dialogue.Store
	store      storage.Store
	reconciler *reconcile.Reconciler
	caller     CallPlacer
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
}

// New builds the handler set. caller may be nil when telephony is not
// configured; dispatch then records failed call rows instead of calling.
func New(controller *dialogue.Controller, sessions *dialogue.Store, store storage.Store,
	reconciler *reconcile.Reconciler, caller CallPlacer, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		controller: controller,
		sessions:   sessions,
		store:      store,
		reconciler: reconciler,
		caller:     caller,
		cfg:        cfg,
		logger:     logger,
		httpClient: http.DefaultClient,
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleHealth)
	r.Get("/health", h.handleHealth)

	// Telephony webhooks. GET on /voice supports provider console testing.
	r.Get("/voice", h.handleVoice)
	r.Post("/voice", h.handleVoice)
	r.Post("/process_speech", h.handleProcessSpeech)
	r.Post("/twilio/status", h.handleStatusCallback)
	r.Post("/twilio/amd_status", h.handleAMDCallback)
	r.Post("/twilio/reconcile", h.handleReconcile)

	r.Post("/api/decision", h.handleDecision)
	r.Get("/api/evaluations", h.handleEvaluations)
	r.Post("/api/execute_all", h.handleExecuteAll)
	r.Get("/api/history", h.handleHistory)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeTwiML(w http.ResponseWriter, resp *telephony.Response) {
	out, err := resp.Render()
	if err != nil {
		h.logger.Error("failed to render twiml", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(out))
}

// formValue reads a parameter from the POST form or the query string,
// whichever carries it.
func formValue(r *http.Request, key string) string {
	if v := r.PostFormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func (h *Handler) processSpeechURL() string {
	return h.cfg.PublicBaseURL + "/process_speech"
}

func (h *Handler) voiceURL(params url.Values) string {
	return h.cfg.PublicBaseURL + "/voice?" + params.Encode()
}
