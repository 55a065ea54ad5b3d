package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/verified-checkout/internal/common"
	"github.com/noah-isme/verified-checkout/internal/lease"
	"github.com/noah-isme/verified-checkout/internal/obs"
	"github.com/noah-isme/verified-checkout/internal/payment"
	"github.com/noah-isme/verified-checkout/internal/pricing"
	"github.com/noah-isme/verified-checkout/internal/verify"
)

// Error codes surfaced to the client.
const (
	CodeInvalidPhoneNumber     = "INVALID_PHONE_NUMBER"
	CodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	CodeUnknownCustomer        = "UNKNOWN_CUSTOMER"
	CodeVerificationFailed     = "VERIFICATION_FAILED"
	CodeAmbiguousPaymentMethod = "AMBIGUOUS_PAYMENT_METHOD"
)

// retryMessage is shown whenever a submitted code is not approved.
const retryMessage = "Incorrect code, please try again"

// Service orchestrates the verification-and-charge handshake across the
// payment and SMS providers. It holds no state of its own between steps;
// everything durable lives provider-side.
type Service struct {
	Gateway  payment.Gateway
	Verifier verify.Verifier
	Quoter   pricing.Quoter
	Lease    lease.CustomerLease
	Logger   zerolog.Logger
}

// Onboarding is the result of the customer onboarding step.
type Onboarding struct {
	Customer payment.Customer
	Session  payment.SetupSession
}

// Onboard validates the phone via lookup, creates the customer and opens a
// hosted setup session with redirect targets derived from the request origin.
// The customer record survives even if the hosted flow is abandoned; no
// compensating cleanup is attempted.
func (s *Service) Onboard(ctx context.Context, phone, email, origin string) (Onboarding, error) {
	normalised, err := s.Verifier.Lookup(ctx, phone)
	if err != nil {
		if errors.Is(err, verify.ErrInvalidNumber) {
			obs.CountOnboarding("invalid_phone")
			return Onboarding{}, common.NewAppError(CodeInvalidPhoneNumber, "Invalid phone number", http.StatusBadRequest, err)
		}
		obs.CountOnboarding("lookup_error")
		return Onboarding{}, providerUnavailable(err)
	}

	customer, err := s.Gateway.CreateCustomer(ctx, normalised, email)
	if err != nil {
		obs.CountOnboarding("customer_error")
		return Onboarding{}, providerUnavailable(err)
	}

	session, err := s.Gateway.CreateSetupSession(ctx, customer.ID,
		origin+"/?session_id={CHECKOUT_SESSION_ID}", origin+"/")
	if err != nil {
		obs.CountOnboarding("session_error")
		return Onboarding{}, providerUnavailable(err)
	}

	s.Logger.Info().
		Str("customer_id", customer.ID).
		Str("session_id", session.ID).
		Msg("customer onboarded")
	obs.CountOnboarding("ok")
	return Onboarding{Customer: customer, Session: session}, nil
}

// ResolveSession fetches a completed setup session. A nil result means there
// was nothing to resolve, which callers treat as an empty response.
func (s *Service) ResolveSession(ctx context.Context, id string) (*payment.SetupSession, error) {
	session, err := s.Gateway.ResolveSetupSession(ctx, id)
	if err != nil {
		return nil, providerUnavailable(err)
	}
	return session, nil
}

// StartVerification asks the SMS provider to deliver a one-time code to the
// customer's phone and returns the challenge status. Callers must not proceed
// unless the status is pending.
func (s *Service) StartVerification(ctx context.Context, customerID string) (string, error) {
	customer, err := s.Gateway.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownCustomer) {
			return "", unknownCustomer(err)
		}
		obs.CountVerification("start", "error")
		return "", providerUnavailable(err)
	}
	status, err := s.Verifier.Start(ctx, customer.Phone)
	if err != nil {
		obs.CountVerification("start", "error")
		return "", providerUnavailable(err)
	}
	obs.CountVerification("start", status)
	s.Logger.Info().Str("customer_id", customerID).Str("status", status).Msg("verification started")
	return status, nil
}

// CheckAndCharge submits the code and, on approval, charges the customer's
// single stored card immediately. The whole sequence runs under a per-customer
// lease so concurrent attempts cannot double charge.
func (s *Service) CheckAndCharge(ctx context.Context, customerID, code string, items json.RawMessage) (payment.Intent, error) {
	var intent payment.Intent
	err := s.Lease.WithCustomer(ctx, customerID, func(ctx context.Context) error {
		var err error
		intent, err = s.checkAndCharge(ctx, customerID, code, items)
		return err
	})
	return intent, err
}

func (s *Service) checkAndCharge(ctx context.Context, customerID, code string, items json.RawMessage) (payment.Intent, error) {
	customer, err := s.Gateway.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownCustomer) {
			return payment.Intent{}, unknownCustomer(err)
		}
		return payment.Intent{}, providerUnavailable(err)
	}

	status, err := s.Verifier.Check(ctx, customer.Phone, code)
	if err != nil {
		obs.CountVerification("check", "error")
		return payment.Intent{}, providerUnavailable(err)
	}
	obs.CountVerification("check", status)
	if status != verify.StatusApproved {
		// No charge is ever attempted on a rejected code.
		return payment.Intent{}, common.NewAppError(CodeVerificationFailed, retryMessage, http.StatusBadRequest, nil)
	}

	methods, err := s.Gateway.ListCardMethods(ctx, customerID)
	if err != nil {
		return payment.Intent{}, providerUnavailable(err)
	}
	if len(methods) != 1 {
		// Guessing which card to charge is worse than failing loudly.
		s.Logger.Error().
			Str("customer_id", customerID).
			Int("method_count", len(methods)).
			Msg("expected exactly one stored payment method")
		return payment.Intent{}, common.NewAppError(CodeAmbiguousPaymentMethod,
			"Too few or too many payment methods on customer", http.StatusBadRequest, nil)
	}

	quote, err := s.Quoter.Quote(ctx, items)
	if err != nil {
		return payment.Intent{}, common.NewAppError("INVALID_CART", err.Error(), http.StatusBadRequest, err)
	}

	intent, err := s.Gateway.Charge(ctx, payment.ChargeRequest{
		CustomerID:      customerID,
		PaymentMethodID: methods[0].ID,
		Amount:          quote.Amount,
		Currency:        quote.Currency,
	})
	if err != nil {
		obs.CountPaymentIntent("error")
		return payment.Intent{}, providerUnavailable(err)
	}

	obs.CountPaymentIntent(intent.Status)
	evt := s.Logger.Info().
		Str("customer_id", customerID).
		Str("intent_id", intent.ID).
		Str("status", intent.Status).
		Int64("amount", intent.Amount)
	if intent.Status == payment.IntentStatusRequiresAction {
		evt.Msg("charge awaiting secondary authentication")
	} else {
		evt.Msg("charge confirmed")
	}
	return intent, nil
}

func providerUnavailable(err error) error {
	return common.NewAppError(CodeProviderUnavailable, err.Error(), http.StatusBadRequest, err)
}

func unknownCustomer(err error) error {
	return common.NewAppError(CodeUnknownCustomer, "No such customer", http.StatusBadRequest, err)
}
