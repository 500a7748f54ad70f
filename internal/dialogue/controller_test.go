package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/GitHub-Roomie/cobranza/internal/provider"
)

// fakeGenerator returns canned replies and records the context it was given.
type fakeGenerator struct {
	replies []string
	calls   int
	err     error
	last    []provider.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []provider.Message) (string, error) {
	f.last = messages
	if f.err != nil {
		return "", f.err
	}
	reply := "¿Puedes pagar hoy?"
	if f.calls < len(f.replies) {
		reply = f.replies[f.calls]
	}
	f.calls++
	return reply, nil
}

func newTestController(t *testing.T, gen *fakeGenerator) (*Controller, *Store) {
	t.Helper()
	store := NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl, err := NewController(store, gen, DefaultClassifier(), logger, ControllerConfig{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return ctrl, store
}

func TestController_OpenMarksIdentityAsked(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"[[NOMBRE]], soy Sofía. Saldo $5.000,00, 10 días. ¿Eres [[NOMBRE]]?"}}
	ctrl, store := newTestController(t, gen)

	utt, err := ctrl.Open(context.Background(), "CA123", testSeed())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sess, _ := store.Get("CA123")
	if !sess.IdentityAsked {
		t.Error("IdentityAsked should be true after Open")
	}
	if utt.Close {
		t.Error("opening turn should not close the call")
	}
	if strings.Contains(utt.Text, NamePlaceholder) {
		t.Errorf("placeholder left in opening line: %q", utt.Text)
	}
}

func TestController_IdentityPolicyInjectedOnceNeverReasked(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, _ := newTestController(t, gen)

	if _, err := ctrl.Open(context.Background(), "CA123", testSeed()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// The opening context must not carry the "already asked" guidance.
	for _, m := range gen.last {
		if strings.Contains(m.Content, "Ya preguntaste identidad") {
			t.Error("opening context should not contain the no-reask guidance")
		}
	}

	// Every later turn carries guidance not to re-ask, never a new ask.
	for i := 0; i < 5; i++ {
		if _, err := ctrl.Turn(context.Background(), "CA123", "quiero ver opciones"); err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
		found := false
		for _, m := range gen.last {
			if strings.Contains(m.Content, "NO repitas") {
				found = true
			}
		}
		if !found {
			t.Errorf("turn %d context missing identity no-reask guidance", i+1)
		}
	}
}

func TestController_IdentityConfirmationTracking(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())
	sess, _ := store.Get("CA123")

	if _, err := ctrl.Turn(context.Background(), "CA123", "sí, soy yo"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if !sess.IdentityConfirmed {
		t.Error("affirmation should set IdentityConfirmed")
	}

	if _, err := ctrl.Turn(context.Background(), "CA123", "perdón, no soy el titular"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if sess.IdentityConfirmed {
		t.Error("denial should override IdentityConfirmed to false")
	}

	if _, err := ctrl.Turn(context.Background(), "CA123", "el teléfono cambió"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if sess.IdentityConfirmed {
		t.Error("neutral utterance should leave the flag unchanged")
	}
}

func TestController_ResistanceEscalation(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed()) // level 2 → intensity 1
	sess, _ := store.Get("CA123")
	sess.Resists = 1

	if _, err := ctrl.Turn(context.Background(), "CA123", "no tengo dinero, llama después"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if sess.Resists != 3 {
		t.Errorf("Resists = %d, want 3 (two pattern matches)", sess.Resists)
	}
	if sess.Intensity != 2 {
		t.Errorf("Intensity = %d, want 2", sess.Intensity)
	}

	if _, err := ctrl.Turn(context.Background(), "CA123", "no puedo, después"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if sess.Resists != 5 {
		t.Errorf("Resists = %d, want 5", sess.Resists)
	}
	if sess.Intensity != 3 {
		t.Errorf("Intensity = %d, want 3 at resistance >= 4", sess.Intensity)
	}
}

func TestController_IntensityPinnedAtTargetLevelThree(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)

	seed := testSeed()
	seed.Level = 3
	ctrl.Open(context.Background(), "CA3", seed)
	sess, _ := store.Get("CA3")

	if sess.Intensity != 3 {
		t.Fatalf("Intensity = %d, want 3 at open", sess.Intensity)
	}
	ctrl.Turn(context.Background(), "CA3", "de acuerdo, pago hoy")
	if sess.Intensity != 3 {
		t.Errorf("Intensity = %d, want pinned 3", sess.Intensity)
	}
}

func TestController_IntensityNeverDecreases(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())
	sess, _ := store.Get("CA123")

	prev := sess.Intensity
	inputs := []string{"no tengo", "no puedo", "está bien", "no tengo nada", "ok"}
	for _, in := range inputs {
		ctrl.Turn(context.Background(), "CA123", in)
		if sess.Intensity < prev {
			t.Fatalf("intensity decreased from %d to %d after %q", prev, sess.Intensity, in)
		}
		prev = sess.Intensity
	}
}

func TestController_ClosingPhraseEndsCall(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, _ := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())
	callsBefore := gen.calls

	utt, err := ctrl.Turn(context.Background(), "CA123", "gracias, es todo")
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if !utt.Close {
		t.Error("closing phrase should end the call")
	}
	if utt.Text != FarewellLine {
		t.Errorf("Text = %q, want fixed farewell", utt.Text)
	}
	if gen.calls != callsBefore {
		t.Error("closing turn must not invoke generation")
	}
}

func TestController_SilenceRepromptsWithoutStateChange(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())
	sess, _ := store.Get("CA123")

	turnsBefore := sess.TurnsEmitted
	resistsBefore := sess.Resists
	callsBefore := gen.calls

	utt, err := ctrl.Turn(context.Background(), "CA123", "   ")
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if utt.Text != RepromptLine {
		t.Errorf("Text = %q, want fixed reprompt", utt.Text)
	}
	if utt.Close {
		t.Error("silence should not close the call")
	}
	if sess.TurnsEmitted != turnsBefore || sess.Resists != resistsBefore {
		t.Error("silence must not touch session state")
	}
	if gen.calls != callsBefore {
		t.Error("silence must not invoke generation")
	}
}

func TestController_SessionDeletionRace(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())

	// Simulate a terminal status callback landing right before the turn.
	store.Delete("CA123")

	_, err := ctrl.Turn(context.Background(), "CA123", "hola")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Turn() error = %v, want ErrSessionNotFound", err)
	}
}

func TestController_GenerationFailureIsFatalForTurn(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())
	sess, _ := store.Get("CA123")
	historyBefore := len(sess.History)

	gen.err = errors.New("quota exceeded")
	_, err := ctrl.Turn(context.Background(), "CA123", "quiero pagar")
	if err == nil {
		t.Fatal("expected error when generation fails")
	}
	if len(sess.History) != historyBefore {
		t.Error("failed turn must not be recorded in history")
	}
}

func TestController_NameSubstitutionCap(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"[[NOMBRE]], tu saldo vence hoy. ¿Pagas, [[NOMBRE]]?"}}
	ctrl, _ := newTestController(t, gen)

	utt, err := ctrl.Open(context.Background(), "CA123", testSeed())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if strings.Contains(utt.Text, NamePlaceholder) {
		t.Errorf("placeholder remains: %q", utt.Text)
	}
	if got := strings.Count(utt.Text, "Luis Hernández García"); got != 1 {
		t.Errorf("full name appears %d times, want exactly 1: %q", got, utt.Text)
	}
}

func TestController_NameCadence(t *testing.T) {
	reply := "[[NOMBRE]], ¿confirmas el pago?"
	gen := &fakeGenerator{replies: []string{reply, reply, reply, reply}}
	ctrl, _ := newTestController(t, gen)

	// Turn 1 (opening): inject full name.
	utt, _ := ctrl.Open(context.Background(), "CA123", testSeed())
	if !strings.Contains(utt.Text, "Luis Hernández García") {
		t.Errorf("turn 1 should inject the name: %q", utt.Text)
	}

	// Turns 2 and 3: placeholder stripped, no name.
	for i := 2; i <= 3; i++ {
		utt, _ = ctrl.Turn(context.Background(), "CA123", "quiero ver opciones")
		if strings.Contains(utt.Text, "Luis") || strings.Contains(utt.Text, NamePlaceholder) {
			t.Errorf("turn %d should strip the vocative: %q", i, utt.Text)
		}
	}

	// Turn 4: next cadence slot, rotated to the first-name variant.
	utt, _ = ctrl.Turn(context.Background(), "CA123", "quiero ver opciones")
	if !strings.HasPrefix(utt.Text, "Luis,") {
		t.Errorf("turn 4 should inject the rotated first-name variant: %q", utt.Text)
	}
}

func TestController_HistoryWindowTruncation(t *testing.T) {
	gen := &fakeGenerator{}
	ctrl, store := newTestController(t, gen)
	ctrl.Open(context.Background(), "CA123", testSeed())

	for i := 0; i < 10; i++ {
		if _, err := ctrl.Turn(context.Background(), "CA123", "quiero un plan de pagos"); err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
	}

	sess, _ := store.Get("CA123")
	// Full history is retained on the session...
	if len(sess.History) < 20 {
		t.Errorf("history length = %d, want full transcript", len(sess.History))
	}
	// ...but the generation context carries at most the trailing window plus
	// system entries and the current input.
	var historyEntries int
	for _, m := range gen.last {
		if strings.HasPrefix(m.Content, "(Tu respuesta anterior)") || m.Role == "user" {
			historyEntries++
		}
	}
	// 6 window entries + 1 current input.
	if historyEntries > 7 {
		t.Errorf("context carries %d history entries, want <= 7", historyEntries)
	}
}
