package dialogue

import "testing"

func TestClassifier_CountResistance(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		text string
		want int
	}{
		{"no tengo dinero, llama después", 2},
		{"no puedo pagar ahora", 1},
		{"claro, pago hoy mismo", 0},
		{"no quiero pagar nada", 1},
		{"NO TENGO y no puedo", 2},
		{"", 0},
	}

	for _, tt := range tests {
		if got := c.CountResistance(tt.text); got != tt.want {
			t.Errorf("CountResistance(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestClassifier_ShouldClose(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		text string
		want bool
	}{
		{"gracias, es todo", true},
		{"adiós", true},
		{"hasta luego", true},
		{"ya no me interesa", true},
		{"quiero pagar mañana", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.ShouldClose(tt.text); got != tt.want {
			t.Errorf("ShouldClose(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifier_DetectIdentity(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		text string
		want IdentitySignal
	}{
		{"sí, soy yo", IdentityAffirmed},
		{"así es", IdentityAffirmed},
		{"correcto", IdentityAffirmed},
		{"no soy esa persona", IdentityDenied},
		{"se equivoca de número", IdentityDenied},
		{"no habla con él", IdentityDenied},
		{"quiero un plan de pagos", IdentityNone},
		{"", IdentityNone},
	}

	for _, tt := range tests {
		if got := c.DetectIdentity(tt.text); got != tt.want {
			t.Errorf("DetectIdentity(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifier_DenialWinsOverAffirmation(t *testing.T) {
	c := DefaultClassifier()
	// "no soy" contains "soy"; the denial must take precedence.
	if got := c.DetectIdentity("no soy el titular"); got != IdentityDenied {
		t.Errorf("DetectIdentity = %v, want IdentityDenied", got)
	}
}

func TestNewClassifier_CustomPatterns(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{
		Resistance: []string{`\bbroke\b`},
	})
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	if got := c.CountResistance("i am broke"); got != 1 {
		t.Errorf("custom resistance pattern: got %d, want 1", got)
	}
	// Other lists keep their defaults.
	if !c.ShouldClose("adiós") {
		t.Error("default closers should survive a partial config")
	}
}

func TestNewClassifier_InvalidPattern(t *testing.T) {
	if _, err := NewClassifier(ClassifierConfig{Closers: []string{`[`}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
