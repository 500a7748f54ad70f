package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GitHub-Roomie/cobranza/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndListEvaluations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"Luis Hernández", "Ana Torres"} {
		ev := &storage.Evaluation{
			ID:          "ev-" + name,
			Name:        name,
			DaysPastDue: 10 + i,
			Score:       75,
			Score850:    712.5,
			Amount:      decimal.NewFromInt(5000),
			Level:       1,
			MinPartial:  decimal.RequireFromString("500.00"),
			Channel:     "call",
			Rationale:   "Sugerido principal: call.",
		}
		if err := store.SaveEvaluation(ctx, ev); err != nil {
			t.Fatalf("SaveEvaluation() error = %v", err)
		}
	}

	got, err := store.RecentEvaluations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvaluations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d evaluations, want 2", len(got))
	}
	if !got[0].MinPartial.Equal(decimal.RequireFromString("500.00")) {
		t.Errorf("MinPartial = %s, want 500.00", got[0].MinPartial)
	}
	if !got[0].Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Amount = %s, want 5000", got[0].Amount)
	}
}

func TestStore_AppendAndGetBySID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &storage.ActionLog{
		ID:          "req-1:call",
		Channel:     "call",
		To:          "+525512345678",
		Name:        "Luis Hernández",
		Status:      "queued",
		ProviderSID: "CA123",
	}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.GetByProviderSID(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetByProviderSID() error = %v", err)
	}
	if got.Status != "queued" || got.Channel != "call" {
		t.Errorf("entry = %+v", got)
	}

	if _, err := store.GetByProviderSID(ctx, "CA-unknown"); !errors.Is(err, storage.ErrLogNotFound) {
		t.Errorf("unknown SID error = %v, want ErrLogNotFound", err)
	}
}

func TestStore_UpdateCallStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &storage.ActionLog{ID: "req-1:call", Channel: "call", Status: "queued", ProviderSID: "CA123"}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	upd := storage.CallStatusUpdate{
		Status:      "completed",
		Answered:    true,
		AnsweredBy:  "human",
		EndStatus:   "completed",
		DurationSec: 42,
	}
	if err := store.UpdateCallStatus(ctx, "CA123", upd); err != nil {
		t.Fatalf("UpdateCallStatus() error = %v", err)
	}

	got, err := store.GetByProviderSID(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetByProviderSID() error = %v", err)
	}
	if got.Status != "completed" || !got.Answered || got.AnsweredBy != "human" ||
		got.EndStatus != "completed" || got.DurationSec != 42 {
		t.Errorf("entry after update = %+v", got)
	}

	if err := store.UpdateCallStatus(ctx, "CA-unknown", upd); !errors.Is(err, storage.ErrLogNotFound) {
		t.Errorf("unknown SID error = %v, want ErrLogNotFound", err)
	}
}

func TestStore_UpdateCallStatus_LateEventKeepsOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &storage.ActionLog{ID: "req-1:call", Channel: "call", Status: "sent", ProviderSID: "CA123"}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	done := storage.CallStatusUpdate{
		Status: "completed", Answered: true, AnsweredBy: "human",
		EndStatus: "completed", DurationSec: 42,
	}
	if err := store.UpdateCallStatus(ctx, "CA123", done); err != nil {
		t.Fatalf("UpdateCallStatus() error = %v", err)
	}

	// Out-of-order delivery: a ringing callback lands after the terminal one.
	// Its empty outcome fields must not erase what was already recorded.
	late := storage.CallStatusUpdate{Status: "queued"}
	if err := store.UpdateCallStatus(ctx, "CA123", late); err != nil {
		t.Fatalf("late UpdateCallStatus() error = %v", err)
	}

	got, err := store.GetByProviderSID(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetByProviderSID() error = %v", err)
	}
	if got.EndStatus != "completed" || got.AnsweredBy != "human" {
		t.Errorf("late update erased outcome fields: %+v", got)
	}
	if got.Status != "queued" {
		t.Errorf("Status = %q, want queued", got.Status)
	}
}

func TestStore_UpdateAMD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &storage.ActionLog{ID: "req-1:call", Channel: "call", Status: "sent", ProviderSID: "CA123"}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := store.UpdateAMD(ctx, "CA123", false, "machine_start", "machine"); err != nil {
		t.Fatalf("UpdateAMD() error = %v", err)
	}

	got, _ := store.GetByProviderSID(ctx, "CA123")
	if got.Answered || got.AnsweredBy != "machine_start" || got.Status != "machine" {
		t.Errorf("entry after AMD = %+v", got)
	}
	// AMD must not touch lifecycle fields.
	if got.EndStatus != "" || got.DurationSec != 0 {
		t.Errorf("AMD touched lifecycle fields: %+v", got)
	}
}

func TestStore_StuckCalls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rowsByStatus := map[string]string{
		"CA-q": "queued",
		"CA-s": "sent",
		"CA-c": "completed",
		"CA-f": "failed",
	}
	for sid, status := range rowsByStatus {
		entry := &storage.ActionLog{ID: "req:" + sid, Channel: "call", Status: status, ProviderSID: sid}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	// A non-call row in queued state must never surface.
	wa := &storage.ActionLog{ID: "req:wa", Channel: "whatsapp", Status: "queued"}
	if err := store.Append(ctx, wa); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.StuckCalls(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StuckCalls() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d stuck calls, want 2: %+v", len(got), got)
	}
	for _, entry := range got {
		if entry.Status != "queued" && entry.Status != "sent" {
			t.Errorf("unexpected status %q", entry.Status)
		}
		if entry.Channel != "call" {
			t.Errorf("unexpected channel %q", entry.Channel)
		}
	}

	// A window entirely in the future excludes everything.
	got, err = store.StuckCalls(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("StuckCalls() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d stuck calls for future window, want 0", len(got))
	}
}

func TestStore_Recent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		entry := &storage.ActionLog{ID: id, Channel: "sms", Status: "queued"}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}
