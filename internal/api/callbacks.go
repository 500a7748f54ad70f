package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GitHub-Roomie/cobranza/internal/decision"
	"github.com/GitHub-Roomie/cobranza/internal/reconcile"
	"github.com/GitHub-Roomie/cobranza/internal/server"
)

// handleStatusCallback records a call lifecycle event. Webhook paths always
// answer 204: a retry storm from the provider helps nobody, failures are
// logged and left for the reconciliation sweep.
func (h *Handler) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	ev := reconcile.StatusEvent{
		CallSID:     formValue(r, "CallSid"),
		Status:      strings.ToLower(formValue(r, "CallStatus")),
		Event:       strings.ToLower(formValue(r, "StatusCallbackEvent")),
		DurationSec: decision.ParseInt(formValue(r, "CallDuration")),
		AnsweredBy:  strings.ToLower(formValue(r, "AnsweredBy")),
	}
	server.AddLogField(r.Context(), "call_sid", ev.CallSID)
	server.AddLogField(r.Context(), "call_status", ev.Status)
	server.AddLogField(r.Context(), "call_event", ev.Event)

	if ev.CallSID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.reconciler.ApplyStatus(r.Context(), ev); err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("status callback failed",
			slog.String("call_sid", ev.CallSID),
			slog.String("error", err.Error()),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAMDCallback records the async machine-detection verdict. Same 204
// contract as the status callback.
func (h *Handler) handleAMDCallback(w http.ResponseWriter, r *http.Request) {
	callSID := formValue(r, "CallSid")
	answeredBy := strings.ToLower(formValue(r, "AnsweredBy"))
	server.AddLogField(r.Context(), "call_sid", callSID)
	server.AddLogField(r.Context(), "answered_by", answeredBy)

	if callSID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.reconciler.ApplyAMD(r.Context(), callSID, answeredBy); err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("amd callback failed",
			slog.String("call_sid", callSID),
			slog.String("error", err.Error()),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReconcile runs a sweep over stuck calls, either one SID or every
// call still queued/sent inside the window.
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	sid := formValue(r, "call_sid")

	minutes := decision.ParseInt(formValue(r, "minutes"))
	if minutes <= 0 {
		minutes = 60
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)

	result, err := h.reconciler.Sweep(r.Context(), since, sid)
	if err != nil {
		server.AddError(r.Context(), err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"checked": result.Checked,
		"updated": result.Updated,
		"errors":  result.Errors,
	})
}
