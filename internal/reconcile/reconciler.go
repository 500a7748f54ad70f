// Package reconcile keeps the action log and live sessions consistent with
// telephony provider events: status callbacks, machine detection, and a
// polling sweep for calls whose callbacks never arrived.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/GitHub-Roomie/cobranza/internal/dialogue"
	"github.com/GitHub-Roomie/cobranza/internal/storage"
	"github.com/GitHub-Roomie/cobranza/internal/telephony"
)

// Raw provider status → canonical action log status.
var statusMap = map[string]string{
	"busy":        "failed",
	"no-answer":   "failed",
	"failed":      "failed",
	"canceled":    "failed",
	"queued":      "queued",
	"ringing":     "queued",
	"initiated":   "queued",
	"in-progress": "sent",
	"answered":    "sent",
	"completed":   "completed",
}

// terminal statuses end the call; the session is removed and end_status is
// recorded.
var terminal = map[string]bool{
	"completed": true,
	"no-answer": true,
	"busy":      true,
	"failed":    true,
	"canceled":  true,
}

// StatusEvent is a provider lifecycle callback, already decoded from the
// webhook form. Status and Event travel separately: the answered notification
// arrives as Event "answered" while Status still reads "in-progress".
type StatusEvent struct {
	CallSID     string
	Status      string
	Event       string
	DurationSec int
	AnsweredBy  string
}

// CallFetcher is the provider lookup used by the sweep.
type CallFetcher interface {
	FetchCall(ctx context.Context, callSID string) (*telephony.Call, error)
}

// Reconciler applies provider events to the action log and session store.
type Reconciler struct {
	logs     storage.ActionLogStore
	sessions *dialogue.Store
	calls    CallFetcher
	logger   *slog.Logger
}

// New wires the reconciler. calls may be nil when no sweep is needed.
func New(logs storage.ActionLogStore, sessions *dialogue.Store, calls CallFetcher, logger *slog.Logger) *Reconciler {
	return &Reconciler{logs: logs, sessions: sessions, calls: calls, logger: logger}
}

// NormalizeStatus maps a raw provider status onto the canonical lifecycle.
// Unknown statuses pass through unchanged.
func NormalizeStatus(raw string) string {
	if mapped, ok := statusMap[raw]; ok {
		return mapped
	}
	return raw
}

// IsTerminal reports whether the raw provider status ends the call.
func IsTerminal(raw string) bool {
	return terminal[raw]
}

// Answered derives the human-contact flag from the event shape. The lifecycle
// event is the signal, not the status: duration stays zero until completion.
func Answered(ev StatusEvent) bool {
	return ev.Event == "answered" || ev.DurationSec > 0 || strings.HasPrefix(ev.AnsweredBy, "human")
}

// endsSession reports whether the event closes the dialogue. Completion is
// signaled by the lifecycle event; failure outcomes arrive as statuses.
func endsSession(ev StatusEvent) bool {
	return ev.Event == "completed" || (IsTerminal(ev.Status) && ev.Status != "completed")
}

// ApplyStatus records a lifecycle event. The action log row for the SID is
// updated in place; a late event for an unknown SID synthesizes a minimal
// row. Events that end the call also remove the live session, idempotently,
// which is what makes an in-flight turn observe ErrSessionNotFound.
func (r *Reconciler) ApplyStatus(ctx context.Context, ev StatusEvent) error {
	upd := storage.CallStatusUpdate{
		Status:      NormalizeStatus(ev.Status),
		Answered:    Answered(ev),
		AnsweredBy:  ev.AnsweredBy,
		DurationSec: ev.DurationSec,
	}
	if IsTerminal(ev.Status) {
		upd.EndStatus = ev.Status
	}

	err := r.logs.UpdateCallStatus(ctx, ev.CallSID, upd)
	if errors.Is(err, storage.ErrLogNotFound) {
		entry := &storage.ActionLog{
			ID:          "late:" + ev.CallSID,
			Channel:     "call",
			Status:      upd.Status,
			ProviderSID: ev.CallSID,
			Answered:    upd.Answered,
			AnsweredBy:  upd.AnsweredBy,
			EndStatus:   upd.EndStatus,
			DurationSec: upd.DurationSec,
		}
		err = r.logs.Append(ctx, entry)
	}
	if err != nil {
		return fmt.Errorf("failed to record status for %s: %w", ev.CallSID, err)
	}

	if endsSession(ev) {
		removed := r.sessions.Delete(ev.CallSID)
		r.logger.Info("call ended",
			slog.String("call_sid", ev.CallSID),
			slog.String("status", ev.Status),
			slog.Bool("session_removed", removed),
		)
	}

	return nil
}

// ApplyAMD records the machine-detection verdict. Machine verdicts mark the
// row unanswered with status "machine" but keep the session alive: the
// provider may still hand the call to a human after voicemail detection.
func (r *Reconciler) ApplyAMD(ctx context.Context, callSID, answeredBy string) error {
	status := ""
	answered := false
	if entry, err := r.logs.GetByProviderSID(ctx, callSID); err == nil {
		status = entry.Status
		answered = entry.Answered
	} else if !errors.Is(err, storage.ErrLogNotFound) {
		return fmt.Errorf("failed to look up %s: %w", callSID, err)
	}

	// Only human and machine verdicts carry signal; unknown and fax leave
	// the answered flag as it was.
	switch {
	case strings.HasPrefix(answeredBy, "human"):
		answered = true
	case strings.HasPrefix(answeredBy, "machine"):
		answered = false
		status = "machine"
	}
	if status == "" {
		status = "sent"
	}

	err := r.logs.UpdateAMD(ctx, callSID, answered, answeredBy, status)
	if errors.Is(err, storage.ErrLogNotFound) {
		entry := &storage.ActionLog{
			ID:          "late:" + callSID,
			Channel:     "call",
			Status:      status,
			ProviderSID: callSID,
			Answered:    answered,
			AnsweredBy:  answeredBy,
		}
		err = r.logs.Append(ctx, entry)
	}
	if err != nil {
		return fmt.Errorf("failed to record machine detection for %s: %w", callSID, err)
	}

	return nil
}

// SweepError is one failed row in a sweep; the sweep itself continues.
type SweepError struct {
	SID   string `json:"sid"`
	Error string `json:"error"`
}

// SweepResult summarizes a reconciliation sweep.
type SweepResult struct {
	Checked int          `json:"checked"`
	Updated int          `json:"updated"`
	Errors  []SweepError `json:"errors,omitempty"`
}

// Sweep re-checks calls stuck in queued or sent against the provider. When
// sid is non-empty only that call is checked; otherwise every stuck call
// created at or after since is. Calls the provider still reports as live are
// skipped. Per-row failures are collected, not fatal.
func (r *Reconciler) Sweep(ctx context.Context, since time.Time, sid string) (SweepResult, error) {
	if r.calls == nil {
		return SweepResult{}, fmt.Errorf("no telephony client configured")
	}

	var sids []string
	if sid != "" {
		sids = []string{sid}
	} else {
		stuck, err := r.logs.StuckCalls(ctx, since)
		if err != nil {
			return SweepResult{}, fmt.Errorf("failed to list stuck calls: %w", err)
		}
		for _, entry := range stuck {
			if entry.ProviderSID != "" {
				sids = append(sids, entry.ProviderSID)
			}
		}
	}

	result := SweepResult{Checked: len(sids)}
	for _, s := range sids {
		updated, err := r.sweepOne(ctx, s)
		if err != nil {
			result.Errors = append(result.Errors, SweepError{SID: s, Error: err.Error()})
			continue
		}
		if updated {
			result.Updated++
		}
	}

	r.logger.Info("reconciliation sweep finished",
		slog.Int("checked", result.Checked),
		slog.Int("updated", result.Updated),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (r *Reconciler) sweepOne(ctx context.Context, sid string) (bool, error) {
	call, err := r.calls.FetchCall(ctx, sid)
	if err != nil {
		return false, err
	}

	if !IsTerminal(call.Status) {
		return false, nil
	}

	durationSec, _ := strconv.Atoi(call.Duration)
	ev := StatusEvent{
		CallSID:     sid,
		Status:      call.Status,
		DurationSec: durationSec,
		AnsweredBy:  call.AnsweredBy,
	}
	// The call resource carries no lifecycle event; a completed status means
	// the completion event already fired while its webhook went missing.
	if call.Status == "completed" {
		ev.Event = "completed"
	}
	if err := r.ApplyStatus(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}
