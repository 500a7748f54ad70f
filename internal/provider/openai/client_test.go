package openai

import (
	"context"
	"strings"
	"testing"

	"github.com/GitHub-Roomie/cobranza/internal/provider"
	"github.com/GitHub-Roomie/cobranza/internal/testutil"
)

func TestClient_Generate(t *testing.T) {
	r := testutil.NewRecorder(t, "chat_completion")

	client := NewClient("test-key", "gpt-4o-mini", 0.5,
		WithHTTPClient(testutil.HTTPClient(r)))

	got, err := client.Generate(context.Background(), []provider.Message{
		{Role: "system", Content: "Eres Sofía, agente de cobranza."},
		{Role: "user", Content: "INICIA la llamada ahora."},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.Contains(got, "[[NOMBRE]]") {
		t.Errorf("Generate() = %q, want raw placeholder preserved", got)
	}
	if got != strings.TrimSpace(got) {
		t.Errorf("Generate() = %q, want trimmed output", got)
	}
}

func TestClient_Generate_APIError(t *testing.T) {
	r := testutil.NewRecorder(t, "chat_completion_error")

	client := NewClient("bad-key", "gpt-4o-mini", 0.5,
		WithHTTPClient(testutil.HTTPClient(r)))

	_, err := client.Generate(context.Background(), []provider.Message{
		{Role: "user", Content: "hola"},
	})
	if err == nil {
		t.Fatal("expected error for rejected key")
	}
	if !strings.Contains(err.Error(), "invalid_request_error") {
		t.Errorf("error = %v, want API error type surfaced", err)
	}
}
