package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/GitHub-Roomie/cobranza/internal/decision"
	"github.com/GitHub-Roomie/cobranza/internal/dialogue"
	"github.com/GitHub-Roomie/cobranza/internal/server"
	"github.com/GitHub-Roomie/cobranza/internal/speech"
	"github.com/GitHub-Roomie/cobranza/internal/telephony"
)

// handleVoice answers the provider's webhook when the callee picks up. It
// seeds the session from the call parameters and speaks the forced opening.
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	callSID := formValue(r, "CallSid")
	if callSID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}
	server.AddLogField(r.Context(), "call_sid", callSID)

	name := formValue(r, "nombre")
	days := decision.ParseInt(formValue(r, "dias"))
	score := decision.ParseFloat(formValue(r, "score"))
	amount := decision.ParseAmount(formValue(r, "monto"))

	d := decision.Compute(name, days, score, amount)
	seed := dialogue.SeedFromDecision(name, d)

	// Dispatch may pin the strategy; explicit parameters win over the
	// recomputed decision.
	if lvl := formValue(r, "nivel"); lvl != "" {
		seed.Level = decision.ParseInt(lvl)
	}
	if mp := formValue(r, "min_parcial"); mp != "" {
		seed.MinPartial = decision.ParseAmount(mp)
	}

	utt, err := h.controller.Open(r.Context(), callSID, seed)
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("opening turn failed",
			slog.String("call_sid", callSID),
			slog.String("error", err.Error()),
		)
		h.writeTwiML(w, telephony.Farewell(speech.ToSSML(dialogue.TechnicalErrorLine, 1), h.cfg.Voice))
		return
	}

	ssml := speech.ToSSML(utt.Text, utt.Intensity)
	h.writeTwiML(w, telephony.Prompt(ssml, h.processSpeechURL(), h.cfg.Voice))
}

// handleProcessSpeech consumes one caller utterance and speaks the agent's
// next line. Failure paths answer in spoken Spanish; the telephony channel
// cannot surface machine-readable errors to the person on the line.
func (h *Handler) handleProcessSpeech(w http.ResponseWriter, r *http.Request) {
	callSID := formValue(r, "CallSid")
	userText := formValue(r, "SpeechResult")
	server.AddLogField(r.Context(), "call_sid", callSID)

	// Confidence is advisory; transcripts are accepted regardless.
	if conf := formValue(r, "Confidence"); conf != "" {
		server.AddLogField(r.Context(), "stt_confidence", conf)
	}

	utt, err := h.controller.Turn(r.Context(), callSID, userText)
	switch {
	case errors.Is(err, dialogue.ErrSessionNotFound):
		// The session was removed out-of-band, usually by a terminal status
		// callback racing this turn. Say goodbye instead of erroring.
		h.writeTwiML(w, telephony.Farewell(speech.ToSSML(dialogue.NotFoundLine, 1), h.cfg.Voice))
		return
	case err != nil:
		server.AddError(r.Context(), err)
		h.logger.Error("turn failed",
			slog.String("call_sid", callSID),
			slog.String("error", err.Error()),
		)
		h.writeTwiML(w, telephony.Farewell(speech.ToSSML(dialogue.TechnicalErrorLine, 1), h.cfg.Voice))
		return
	}

	ssml := speech.ToSSML(utt.Text, utt.Intensity)
	if utt.Close {
		h.writeTwiML(w, telephony.Farewell(ssml, h.cfg.Voice))
		return
	}
	h.writeTwiML(w, telephony.Prompt(ssml, h.processSpeechURL(), h.cfg.Voice))
}
