package dialogue

import (
	"fmt"
	"regexp"
	"strings"
)

// IdentitySignal is the outcome of scanning a caller utterance for identity
// confirmation language.
type IdentitySignal int

const (
	IdentityNone IdentitySignal = iota
	IdentityAffirmed
	IdentityDenied
)

// Classifier detects caller intents (resistance, closing, identity) through
// configurable pattern lists. Patterns are configuration, not code, so the
// vocabulary can be tuned without touching the state machine.
type Classifier struct {
	resistance []*regexp.Regexp
	closers    []*regexp.Regexp
	affirm     []*regexp.Regexp
	deny       []*regexp.Regexp
}

// ClassifierConfig carries the raw pattern lists. Empty lists fall back to
// the built-in Spanish defaults.
type ClassifierConfig struct {
	Resistance []string
	Closers    []string
	Affirm     []string
	Deny       []string
}

// Default Spanish (es-MX) vocabulary. Refusal/deferral phrasing for
// resistance, farewell phrasing for closing, and identity affirm/deny cues.
var (
	defaultResistance = []string{
		`\bno tengo\b`,
		`\bno puedo\b`,
		`\bdespu[eé]s\b`,
		`\bno quiero pagar\b`,
		`\bno pienso pagar\b`,
	}
	defaultClosers = []string{
		`\bes todo\b`,
		`\bya no\b`,
		`\bgracias\b`,
		`\bno necesito\b`,
		`\bno quiero\b`,
		`\badios\b`,
		`\badiós\b`,
		`\bbye\b`,
		`\bhasta luego\b`,
	}
	defaultAffirm = []string{
		// \b is ASCII-only in RE2, so a bare "sí" needs explicit delimiters.
		`(?:^|\s)s[ií](?:[\s,.!?¡¿]|$)`,
		`\bas[ií]\s+es\b`,
		`\bsoy\b`,
		`\bhabla\b`,
		`\bcorrecto\b`,
	}
	defaultDeny = []string{
		`\bno soy\b`,
		`\bno habla\b`,
		`\bno.*titular\b`,
		`\bse equivoca\b`,
	}
)

// NewClassifier compiles the configured pattern lists.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	c := &Classifier{}

	var err error
	if c.resistance, err = compileAll(orDefault(cfg.Resistance, defaultResistance)); err != nil {
		return nil, fmt.Errorf("resistance patterns: %w", err)
	}
	if c.closers, err = compileAll(orDefault(cfg.Closers, defaultClosers)); err != nil {
		return nil, fmt.Errorf("closing patterns: %w", err)
	}
	if c.affirm, err = compileAll(orDefault(cfg.Affirm, defaultAffirm)); err != nil {
		return nil, fmt.Errorf("affirm patterns: %w", err)
	}
	if c.deny, err = compileAll(orDefault(cfg.Deny, defaultDeny)); err != nil {
		return nil, fmt.Errorf("deny patterns: %w", err)
	}
	return c, nil
}

// DefaultClassifier returns a classifier with the built-in vocabulary.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(ClassifierConfig{})
	if err != nil {
		// The defaults are compile-checked by tests; this cannot happen at
		// runtime with an empty config.
		panic(err)
	}
	return c
}

func orDefault(patterns, fallback []string) []string {
	if len(patterns) == 0 {
		return fallback
	}
	return patterns
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// CountResistance returns how many distinct resistance patterns match the
// utterance. Each matching pattern counts once regardless of repetition.
func (c *Classifier) CountResistance(text string) int {
	t := strings.ToLower(text)
	n := 0
	for _, re := range c.resistance {
		if re.MatchString(t) {
			n++
		}
	}
	return n
}

// ShouldClose reports whether the utterance signals the caller wants to end
// the conversation.
func (c *Classifier) ShouldClose(text string) bool {
	t := strings.ToLower(text)
	for _, re := range c.closers {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// DetectIdentity scans for identity confirmation language. Denial patterns
// win over affirmations ("no soy" contains "soy").
func (c *Classifier) DetectIdentity(text string) IdentitySignal {
	t := strings.ToLower(text)
	for _, re := range c.deny {
		if re.MatchString(t) {
			return IdentityDenied
		}
	}
	for _, re := range c.affirm {
		if re.MatchString(t) {
			return IdentityAffirmed
		}
	}
	return IdentityNone
}
