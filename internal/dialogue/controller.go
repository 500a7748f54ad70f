package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/GitHub-Roomie/cobranza/internal/provider"
)

// placeholderRE strips leftover vocative markers together with adjacent
// whitespace and an optional comma, enforcing at most one vocative per turn.
var placeholderRE = regexp.MustCompile(`\s*\[\[NOMBRE\]\]\s*,?\s*`)

// Utterance is what the agent says next and how it should be rendered.
type Utterance struct {
	Text      string
	Intensity int
	// Close indicates the call should hang up after this line.
	Close bool
}

// ControllerConfig tunes the turn state machine.
type ControllerConfig struct {
	// HistoryWindow is the number of trailing turns included in the
	// generation context. Zero means the default of 6.
	HistoryWindow int
	// MaxContextTokens caps the assembled prompt; older history is dropped
	// first when the cap is exceeded. Zero means the default of 4000.
	MaxContextTokens int
}

// Controller runs the per-call turn state machine. It is the only writer of
// session fields besides the reconciler's deletion step.
type Controller struct {
	store      *Store
	gen        provider.Generator
	classifier *Classifier
	logger     *slog.Logger

	historyWindow    int
	maxContextTokens int
	codec            tokenizer.Codec
}

// NewController wires the turn state machine.
func NewController(store *Store, gen provider.Generator, cls *Classifier, logger *slog.Logger, cfg ControllerConfig) (*Controller, error) {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 4000
	}

	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	return &Controller{
		store:            store,
		gen:              gen,
		classifier:       cls,
		logger:           logger,
		historyWindow:    cfg.HistoryWindow,
		maxContextTokens: cfg.MaxContextTokens,
		codec:            codec,
	}, nil
}

// Open creates (or reuses) the session for callID and produces the forced
// opening utterance: greet, state balance and days, ask one closed identity
// question. IdentityAsked is set before generation so later turns never
// re-ask.
func (c *Controller) Open(ctx context.Context, callID string, seed Seed) (Utterance, error) {
	sess := c.store.Ensure(callID, seed)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.IdentityAsked = true

	text, err := c.respond(ctx, sess, "", true)
	if err != nil {
		return Utterance{}, fmt.Errorf("opening generation failed: %w", err)
	}

	return Utterance{Text: text, Intensity: sess.Intensity}, nil
}

// Turn consumes a caller utterance and produces the agent's next line.
// Returns ErrSessionNotFound when the session was removed out-of-band (for
// example by a terminal status callback racing this turn); callers terminate
// the call gracefully instead of propagating a hard failure.
func (c *Controller) Turn(ctx context.Context, callID, userText string) (Utterance, error) {
	sess, ok := c.store.Get(callID)
	if !ok {
		return Utterance{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	userText = strings.TrimSpace(userText)

	// Silence: re-emit a short reprompt without advancing any state.
	if userText == "" {
		return Utterance{Text: RepromptLine, Intensity: sess.Intensity}, nil
	}

	switch c.classifier.DetectIdentity(userText) {
	case IdentityAffirmed:
		sess.IdentityConfirmed = true
	case IdentityDenied:
		sess.IdentityConfirmed = false
	}

	// Explicit close from the caller: fixed farewell, no generation.
	if c.classifier.ShouldClose(userText) {
		sess.Closed = true
		return Utterance{Text: FarewellLine, Intensity: sess.Intensity, Close: true}, nil
	}

	c.escalate(sess, userText)

	text, err := c.respond(ctx, sess, userText, false)
	if err != nil {
		return Utterance{}, fmt.Errorf("turn generation failed: %w", err)
	}

	return Utterance{Text: text, Intensity: sess.Intensity}, nil
}

// escalate updates the resistance count and recomputes intensity. Both are
// monotone within a call; intensity is pinned to 3 when the target level
// is 3.
func (c *Controller) escalate(sess *Session, userText string) {
	sess.Resists += c.classifier.CountResistance(userText)

	switch {
	case sess.TargetLevel == 3:
		sess.Intensity = 3
	case sess.Resists >= 4:
		sess.Intensity = 3
	case sess.Resists >= 2 && sess.Intensity < 2:
		sess.Intensity = 2
	}
}

// respond builds the generation context, invokes the generator, applies the
// vocative cadence, and records the exchange in history. Caller holds
// sess.mu.
func (c *Controller) respond(ctx context.Context, sess *Session, userText string, forceIntro bool) (string, error) {
	msgs := c.buildMessages(sess, userText, forceIntro)

	reply, err := c.gen.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)

	reply = c.substituteName(sess, reply)

	if userText != "" {
		sess.History = append(sess.History, Turn{Role: RoleCaller, Text: userText})
	}
	sess.History = append(sess.History, Turn{Role: RoleAgent, Text: reply})
	sess.TurnsEmitted++

	return reply, nil
}

// buildMessages assembles the model context: system prompt, escalation
// guidance, identity policy, trailing history window, and the current input.
// The window shrinks further if the assembled context exceeds the token cap.
func (c *Controller) buildMessages(sess *Session, userText string, forceIntro bool) []provider.Message {
	window := c.historyWindow

	msgs := c.assemble(sess, userText, forceIntro, window)
	for tokens := c.countTokens(msgs); tokens > c.maxContextTokens && window > 0; tokens = c.countTokens(msgs) {
		window--
		msgs = c.assemble(sess, userText, forceIntro, window)
	}

	c.logger.Debug("built generation context",
		slog.String("call_sid", sess.CallID),
		slog.Int("messages", len(msgs)),
		slog.Int("tokens", c.countTokens(msgs)),
	)

	return msgs
}

func (c *Controller) assemble(sess *Session, userText string, forceIntro bool, window int) []provider.Message {
	msgs := []provider.Message{
		{Role: "system", Content: sess.SystemPrompt},
		{Role: "system", Content: fmt.Sprintf("Nivel de cobro objetivo (1-3): %d.", sess.TargetLevel)},
		{Role: "system", Content: fmt.Sprintf("Nivel de intensidad sugerido por resistencia: %d.", sess.Intensity)},
	}

	// Identity is asked exactly once, in the opening. Later turns carry only
	// guidance text; the flag never blocks the flow.
	if sess.IdentityAsked && !forceIntro {
		if sess.IdentityConfirmed {
			msgs = append(msgs, provider.Message{Role: "system", Content: "La identidad ya fue confirmada en la apertura. " +
				"NO repitas '¿Eres [[NOMBRE]]?'. Dirígete directo al motivo y opciones."})
		} else {
			msgs = append(msgs, provider.Message{Role: "system", Content: "Ya preguntaste identidad en la apertura. NO repitas la pregunta. " +
				"Si la persona indica que no es el titular, solicita teléfono/horario del titular " +
				"o un medio de contacto, pero no vuelvas a pedir confirmación de identidad."})
		}
	}

	history := sess.History
	if len(history) > window {
		history = history[len(history)-window:]
	}
	for _, turn := range history {
		if turn.Role == RoleCaller {
			msgs = append(msgs, provider.Message{Role: "user", Content: turn.Text})
		} else {
			msgs = append(msgs, provider.Message{Role: "system", Content: "(Tu respuesta anterior): " + turn.Text})
		}
	}

	if forceIntro {
		msgs = append(msgs, provider.Message{Role: "user", Content: forceIntroInstruction})
	} else {
		msgs = append(msgs, provider.Message{Role: "user", Content: userText})
	}

	return msgs
}

func (c *Controller) countTokens(msgs []provider.Message) int {
	n := 0
	for _, m := range msgs {
		ids, _, err := c.codec.Encode(m.Content)
		if err != nil {
			continue
		}
		n += len(ids)
	}
	return n
}

// substituteName applies the vocative cadence: the name is injected on agent
// turns 1, 4, 7, ...; on other turns the placeholder is stripped. Only the
// first occurrence is ever substituted.
func (c *Controller) substituteName(sess *Session, reply string) string {
	if !strings.Contains(reply, NamePlaceholder) {
		return reply
	}

	turn := sess.TurnsEmitted + 1
	if turn == 1 || turn%3 == 1 {
		addr := sess.nextAddress()
		reply = strings.Replace(reply, NamePlaceholder, addr, 1)
	}
	return placeholderRE.ReplaceAllString(reply, "")
}
