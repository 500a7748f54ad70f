package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultAPIBase = "https://api.twilio.com"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to the Twilio voice REST API using basic auth and
// form-encoded requests.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a voice API client for the given account.
func NewClient(accountSID, authToken, from string, opts ...ClientOption) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultAPIBase,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallRequest describes an outbound call to place.
type CallRequest struct {
	To string
	// VoiceURL is fetched by the provider when the callee answers.
	VoiceURL string
	// StatusCallbackURL receives lifecycle events for the call.
	StatusCallbackURL string
	// AMDCallbackURL, when set, enables async answering machine detection.
	AMDCallbackURL string
	// AMDTimeoutSec bounds machine detection; zero leaves the provider default.
	AMDTimeoutSec int
}

// Call is the provider's view of a call resource.
type Call struct {
	SID        string `json:"sid"`
	Status     string `json:"status"`
	To         string `json:"to"`
	From       string `json:"from"`
	Duration   string `json:"duration"`
	AnsweredBy string `json:"answered_by"`
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// PlaceCall creates an outbound call and returns the provider call resource.
func (c *Client) PlaceCall(ctx context.Context, req CallRequest) (*Call, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.from)
	form.Set("Url", req.VoiceURL)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
		form.Set("StatusCallbackMethod", "POST")
	}
	if req.AMDCallbackURL != "" {
		form.Set("MachineDetection", "Enable")
		form.Set("AsyncAmd", "true")
		form.Set("AsyncAmdStatusCallback", req.AMDCallbackURL)
		form.Set("AsyncAmdStatusCallbackMethod", "POST")
		if req.AMDTimeoutSec > 0 {
			form.Set("MachineDetectionTimeout", fmt.Sprintf("%d", req.AMDTimeoutSec))
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	return c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
}

// FetchCall retrieves the current state of a call by its provider SID.
func (c *Client) FetchCall(ctx context.Context, callSID string) (*Call, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*Call, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("twilio: %s (code %d)", apiErr.Message, apiErr.Code)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var call Call
	if err := json.Unmarshal(respBody, &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &call, nil
}
