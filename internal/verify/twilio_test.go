package verify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// cannedTransport answers Twilio API calls by URL substring so the verifier
// can be exercised without the network.
type cannedTransport struct {
	requests  []*http.Request
	responses map[string]canned
}

type canned struct {
	status int
	body   string
}

func (c *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.requests = append(c.requests, req)
	for fragment, res := range c.responses {
		if strings.Contains(req.URL.String(), fragment) {
			return &http.Response{
				StatusCode: res.status,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(strings.NewReader(res.body)),
				Request:    req,
			}, nil
		}
	}
	return nil, errors.New("unexpected request: " + req.URL.String())
}

func newCannedTwilio(transport *cannedTransport) *Twilio {
	return NewTwilio(TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		ServiceSID: "VA123",
		HTTPClient: &http.Client{Transport: transport},
	})
}

func TestLookupReturnsNormalisedNumber(t *testing.T) {
	transport := &cannedTransport{responses: map[string]canned{
		"lookups.twilio.com": {status: http.StatusOK, body: `{"phone_number":"+15551234567","country_code":"US"}`},
	}}
	tw := newCannedTwilio(transport)

	normalised, err := tw.Lookup(context.Background(), "+1 555 123 4567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if normalised != "+15551234567" {
		t.Fatalf("unexpected normalised number: %q", normalised)
	}
}

func TestLookupMapsNotFoundToInvalidNumber(t *testing.T) {
	transport := &cannedTransport{responses: map[string]canned{
		"lookups.twilio.com": {
			status: http.StatusNotFound,
			body:   `{"code":20404,"message":"The requested resource was not found","status":404}`,
		},
	}}
	tw := newCannedTwilio(transport)

	_, err := tw.Lookup(context.Background(), "garbage")
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}

func TestStartReportsChallengeStatus(t *testing.T) {
	transport := &cannedTransport{responses: map[string]canned{
		"/v2/Services/VA123/Verifications": {status: http.StatusCreated, body: `{"status":"pending","channel":"sms"}`},
	}}
	tw := newCannedTwilio(transport)

	status, err := tw.Start(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("unexpected status: %q", status)
	}
}

func TestCheckReportsApproval(t *testing.T) {
	transport := &cannedTransport{responses: map[string]canned{
		"/v2/Services/VA123/VerificationCheck": {status: http.StatusOK, body: `{"status":"approved"}`},
	}}
	tw := newCannedTwilio(transport)

	status, err := tw.Check(context.Background(), "+15551234567", "123456")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status != StatusApproved {
		t.Fatalf("unexpected status: %q", status)
	}
	if len(transport.requests) != 1 {
		t.Fatalf("expected a single provider call, got %d", len(transport.requests))
	}
}
