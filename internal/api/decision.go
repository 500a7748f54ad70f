package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GitHub-Roomie/cobranza/internal/decision"
	"github.com/GitHub-Roomie/cobranza/internal/server"
	"github.com/GitHub-Roomie/cobranza/internal/storage"
	"github.com/GitHub-Roomie/cobranza/internal/telephony"
)

// clientPayload is a debtor snapshot as clients send it. Numeric fields
// arrive as numbers or strings depending on the upstream system, so they are
// decoded loosely and coerced.
type clientPayload struct {
	Name        string `json:"nombre"`
	Phone       string `json:"telefono"`
	DaysPastDue any    `json:"dias_vencido"`
	Score       any    `json:"score"`
	Amount      any    `json:"monto"`
}

func (p clientPayload) compute() decision.Decision {
	return decision.Compute(p.Name, asInt(p.DaysPastDue), asFloat(p.Score), asAmount(p.Amount))
}

// Loose numeric coercion: invalid values become zero, never an error.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return decision.ParseFloat(t)
	case json.Number:
		return decision.ParseFloat(t.String())
	default:
		return 0
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		return decision.ParseInt(t)
	case json.Number:
		return decision.ParseInt(t.String())
	default:
		return 0
	}
}

func asAmount(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		return decision.ParseAmount(t)
	case json.Number:
		return decision.ParseAmount(t.String())
	default:
		return decimal.Zero
	}
}

// handleDecision computes and persists one evaluation.
func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
		return
	}

	d := payload.compute()

	ev := &storage.Evaluation{
		ID:          uuid.New().String(),
		Name:        payload.Name,
		DaysPastDue: d.DaysPastDue,
		Score:       d.ScoreInput,
		Score850:    float64(d.Score850),
		Amount:      d.Amount,
		Level:       d.Level,
		MinPartial:  d.MinPartial,
		Channel:     d.SuggestedChannel,
		Rationale:   d.Rationale,
	}
	if err := h.store.SaveEvaluation(r.Context(), ev); err != nil {
		server.AddError(r.Context(), err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "failed to persist evaluation"})
		return
	}

	h.writeJSON(w, http.StatusOK, d)
}

// Level → operational priority shown on the evaluations report.
func priorityForLevel(level int) (action, priority string) {
	switch level {
	case 3:
		return "llamada inmediata", "alta"
	case 2:
		return "llamada hoy", "media"
	default:
		return "recordatorio", "baja"
	}
}

type evaluationView struct {
	*storage.Evaluation
	Action   string `json:"accion"`
	Priority string `json:"prioridad"`
}

func (h *Handler) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := decision.ParseInt(r.URL.Query().Get("limit"))

	evs, err := h.store.RecentEvaluations(r.Context(), limit)
	if err != nil {
		server.AddError(r.Context(), err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "failed to list evaluations"})
		return
	}

	views := make([]evaluationView, 0, len(evs))
	for _, ev := range evs {
		action, priority := priorityForLevel(ev.Level)
		views = append(views, evaluationView{Evaluation: ev, Action: action, Priority: priority})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "evaluaciones": views})
}

type executeAllRequest struct {
	Clients []clientPayload `json:"clientes"`
}

type dispatchResult struct {
	Name      string `json:"nombre"`
	RequestID string `json:"request_id"`
	Level     int    `json:"nivel"`
	CallSID   string `json:"call_sid,omitempty"`
	CallError string `json:"call_error,omitempty"`
}

// handleExecuteAll evaluates every client and launches the collection
// strategy: an outbound call plus pre-logged digital channel messages. The
// digital rows record what would be sent; actual delivery runs through the
// notify webhook downstream.
func (h *Handler) handleExecuteAll(w http.ResponseWriter, r *http.Request) {
	var req executeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
		return
	}
	if len(req.Clients) == 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "clientes vacío"})
		return
	}

	results := make([]dispatchResult, 0, len(req.Clients))
	for _, client := range req.Clients {
		results = append(results, h.dispatchOne(r.Context(), client))
	}

	h.notify(map[string]any{"evento": "execute_all", "resultados": results})

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "resultados": results})
}

func (h *Handler) dispatchOne(ctx context.Context, client clientPayload) dispatchResult {
	d := client.compute()
	reqID := "req_" + uuid.New().String()

	result := dispatchResult{Name: client.Name, RequestID: reqID, Level: d.Level}

	// Digital channels are pre-logged as queued so the history shows the
	// full strategy even before delivery.
	digital := []struct {
		suffix  string
		channel string
		payload string
	}{
		{"wa", "whatsapp", d.Templates.WhatsApp},
		{"sms", "sms", d.Templates.SMS},
		{"mail", "email", d.Templates.EmailSubject + "\n" + d.Templates.EmailBody},
	}
	for _, ch := range digital {
		entry := &storage.ActionLog{
			ID:      reqID + ":" + ch.suffix,
			Channel: ch.channel,
			To:      client.Phone,
			Name:    client.Name,
			Status:  "queued",
			Payload: ch.payload,
		}
		if err := h.store.Append(ctx, entry); err != nil {
			h.logger.Error("failed to pre-log digital channel",
				slog.String("id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	callEntry := &storage.ActionLog{
		ID:      reqID + ":call",
		Channel: "call",
		To:      client.Phone,
		Name:    client.Name,
	}

	if h.caller == nil {
		callEntry.Status = "failed"
		callEntry.Error = "telephony not configured"
		result.CallError = callEntry.Error
	} else {
		params := url.Values{}
		params.Set("nombre", client.Name)
		params.Set("dias", fmt.Sprintf("%d", d.DaysPastDue))
		params.Set("score", fmt.Sprintf("%g", d.ScoreInput))
		params.Set("monto", d.Amount.StringFixed(2))
		params.Set("nivel", fmt.Sprintf("%d", d.Level))
		params.Set("min_parcial", d.MinPartial.StringFixed(2))

		call, err := h.caller.PlaceCall(ctx, telephony.CallRequest{
			To:                client.Phone,
			VoiceURL:          h.voiceURL(params),
			StatusCallbackURL: h.cfg.PublicBaseURL + "/twilio/status",
			AMDCallbackURL:    h.cfg.PublicBaseURL + "/twilio/amd_status",
		})
		if err != nil {
			callEntry.Status = "failed"
			callEntry.Error = err.Error()
			result.CallError = err.Error()
			h.logger.Error("failed to place call",
				slog.String("to", client.Phone),
				slog.String("error", err.Error()),
			)
		} else {
			callEntry.Status = "queued"
			callEntry.ProviderSID = call.SID
			result.CallSID = call.SID
		}
	}

	if err := h.store.Append(ctx, callEntry); err != nil {
		h.logger.Error("failed to log call dispatch",
			slog.String("id", callEntry.ID),
			slog.String("error", err.Error()),
		)
	}

	return result
}

// notify POSTs the event to the configured webhook, best effort. Delivery
// failures are logged and forgotten.
func (h *Handler) notify(payload any) {
	if h.cfg.NotifyURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal notify payload", slog.String("error", err.Error()))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.NotifyURL, bytes.NewReader(body))
		if err != nil {
			h.logger.Error("failed to build notify request", slog.String("error", err.Error()))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			h.logger.Warn("notify webhook unreachable", slog.String("error", err.Error()))
			return
		}
		resp.Body.Close()
	}()
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := decision.ParseInt(r.URL.Query().Get("limit"))

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		server.AddError(r.Context(), err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "failed to list history"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "historial": entries})
}
