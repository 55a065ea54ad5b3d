package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	lookups "github.com/twilio/twilio-go/rest/lookups/v1"
	verifyv2 "github.com/twilio/twilio-go/rest/verify/v2"
)

// Twilio implements Verifier on top of Twilio Lookup and Verify V2.
// The SDK client is safe for concurrent use and is constructed once at startup.
type Twilio struct {
	client     *twilio.RestClient
	serviceSID string
}

// TwilioConfig carries the credentials and optional HTTP client used to build
// the SDK client. HTTPClient lets the caller inject an instrumented transport.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	HTTPClient *http.Client
}

// NewTwilio constructs a Twilio-backed verifier.
func NewTwilio(cfg TwilioConfig) *Twilio {
	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
	}
	if cfg.HTTPClient != nil {
		base.HTTPClient = cfg.HTTPClient
	}
	base.SetAccountSid(cfg.AccountSID)
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
		Client:     base,
	})
	return &Twilio{client: rest, serviceSID: cfg.ServiceSID}
}

// Lookup validates the number via Twilio Lookup and returns the E.164 form.
// Twilio answers 404 for numbers it cannot parse, which maps to ErrInvalidNumber.
// The generated SDK does not accept a context; ctx is honoured only by the
// transport's request timeout.
func (t *Twilio) Lookup(_ context.Context, phone string) (string, error) {
	res, err := t.client.LookupsV1.FetchPhoneNumber(phone, &lookups.FetchPhoneNumberParams{})
	if err != nil {
		if isTwilioNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrInvalidNumber, twilioMessage(err))
		}
		return "", fmt.Errorf("lookup phone number: %w", err)
	}
	if res == nil || res.PhoneNumber == nil {
		return "", ErrInvalidNumber
	}
	return *res.PhoneNumber, nil
}

// Start asks Verify to deliver a one-time code over SMS.
func (t *Twilio) Start(_ context.Context, phone string) (string, error) {
	params := &verifyv2.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")
	res, err := t.client.VerifyV2.CreateVerification(t.serviceSID, params)
	if err != nil {
		return "", fmt.Errorf("start verification: %w", err)
	}
	return statusOrUnknown(res.Status), nil
}

// Check submits the code against the pending challenge for the number.
func (t *Twilio) Check(_ context.Context, phone, code string) (string, error) {
	params := &verifyv2.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)
	res, err := t.client.VerifyV2.CreateVerificationCheck(t.serviceSID, params)
	if err != nil {
		return "", fmt.Errorf("check verification: %w", err)
	}
	return statusOrUnknown(res.Status), nil
}

func statusOrUnknown(status *string) string {
	if status == nil {
		return "unknown"
	}
	return *status
}

func isTwilioNotFound(err error) bool {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == http.StatusNotFound
	}
	return false
}

func twilioMessage(err error) string {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Message != "" {
		return restErr.Message
	}
	return err.Error()
}
