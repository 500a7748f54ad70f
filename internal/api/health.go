package api

import "net/http"

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"service":       "cobranza",
		"twilio":        h.cfg.TwilioConfigured,
		"openai":        h.cfg.OpenAIConfigured,
		"live_sessions": h.sessions.Len(),
	})
}
