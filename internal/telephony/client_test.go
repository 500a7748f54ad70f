package telephony

import (
	"context"
	"strings"
	"testing"

	"github.com/GitHub-Roomie/cobranza/internal/testutil"
)

const (
	testAccountSID = "AC00000000000000000000000000000000"
	testAuthToken  = "test-token"
	testFrom       = "+15005550006"
)

func TestClient_PlaceCall(t *testing.T) {
	r := testutil.NewRecorder(t, "place_call")

	client := NewClient(testAccountSID, testAuthToken, testFrom,
		WithHTTPClient(testutil.HTTPClient(r)))

	call, err := client.PlaceCall(context.Background(), CallRequest{
		To:                "+525512345678",
		VoiceURL:          "https://example.com/voice",
		StatusCallbackURL: "https://example.com/twilio/status",
		AMDCallbackURL:    "https://example.com/twilio/amd_status",
		AMDTimeoutSec:     8,
	})
	if err != nil {
		t.Fatalf("PlaceCall() error = %v", err)
	}

	if call.SID != "CA11111111111111111111111111111111" {
		t.Errorf("SID = %q", call.SID)
	}
	if call.Status != "queued" {
		t.Errorf("Status = %q, want queued", call.Status)
	}
}

func TestClient_PlaceCall_APIError(t *testing.T) {
	r := testutil.NewRecorder(t, "place_call_error")

	client := NewClient(testAccountSID, testAuthToken, testFrom,
		WithHTTPClient(testutil.HTTPClient(r)))

	_, err := client.PlaceCall(context.Background(), CallRequest{
		To:       "invalid",
		VoiceURL: "https://example.com/voice",
	})
	if err == nil {
		t.Fatal("expected error for invalid number")
	}
	if !strings.Contains(err.Error(), "21211") {
		t.Errorf("error = %v, want provider error code surfaced", err)
	}
}

func TestClient_FetchCall(t *testing.T) {
	r := testutil.NewRecorder(t, "fetch_call")

	client := NewClient(testAccountSID, testAuthToken, testFrom,
		WithHTTPClient(testutil.HTTPClient(r)))

	call, err := client.FetchCall(context.Background(), "CA11111111111111111111111111111111")
	if err != nil {
		t.Fatalf("FetchCall() error = %v", err)
	}

	if call.Status != "completed" {
		t.Errorf("Status = %q, want completed", call.Status)
	}
	if call.AnsweredBy != "human" {
		t.Errorf("AnsweredBy = %q, want human", call.AnsweredBy)
	}
	if call.Duration != "42" {
		t.Errorf("Duration = %q, want 42", call.Duration)
	}
}
