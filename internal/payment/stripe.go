package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway implements Gateway against the Stripe API. The underlying SDK
// client is documented as safe for concurrent use; one instance is built at
// startup and shared process-wide.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway constructs the gateway. A non-nil httpClient (e.g. an
// instrumented, breaker-wrapped transport) is handed to every Stripe backend.
func NewStripeGateway(secretKey string, httpClient *http.Client) *StripeGateway {
	var backends *stripe.Backends
	if httpClient != nil {
		backends = stripe.NewBackends(httpClient)
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api}
}

// CreateCustomer registers a customer with the normalised phone and email.
func (g *StripeGateway) CreateCustomer(ctx context.Context, phone, email string) (Customer, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Phone:  stripe.String(phone),
		Email:  stripe.String(email),
	}
	cus, err := g.api.Customers.New(params)
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", wrapStripeErr(err))
	}
	return customerFromStripe(cus), nil
}

// GetCustomer fetches a customer by id.
func (g *StripeGateway) GetCustomer(ctx context.Context, id string) (Customer, error) {
	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	cus, err := g.api.Customers.Get(id, params)
	if err != nil {
		if isResourceMissing(err) {
			return Customer{}, ErrUnknownCustomer
		}
		return Customer{}, fmt.Errorf("retrieve customer: %w", wrapStripeErr(err))
	}
	if cus.Deleted {
		return Customer{}, ErrUnknownCustomer
	}
	return customerFromStripe(cus), nil
}

// CreateSetupSession opens a hosted setup-mode checkout session so the card is
// collected and tokenised by the provider without touching this system.
func (g *StripeGateway) CreateSetupSession(ctx context.Context, customerID, successURL, cancelURL string) (SetupSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSetup)),
		Customer:           stripe.String(customerID),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return SetupSession{}, fmt.Errorf("create checkout session: %w", wrapStripeErr(err))
	}
	return SetupSession{ID: sess.ID, URL: sess.URL}, nil
}

// ResolveSetupSession fetches a session with nested customer and payment
// method expanded. Unknown or malformed identifiers resolve to nil: a fresh
// visit with a stale query parameter is not a fault.
func (g *StripeGateway) ResolveSetupSession(ctx context.Context, id string) (*SetupSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("customer")
	params.AddExpand("setup_intent.payment_method")
	sess, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		if isResourceMissing(err) || isInvalidRequest(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve checkout session: %w", wrapStripeErr(err))
	}
	resolved := &SetupSession{ID: sess.ID}
	if sess.Customer != nil {
		cus := customerFromStripe(sess.Customer)
		resolved.Customer = &cus
	}
	if sess.SetupIntent != nil && sess.SetupIntent.PaymentMethod != nil {
		pm := sess.SetupIntent.PaymentMethod
		method := CardMethod{ID: pm.ID}
		if pm.Card != nil {
			method.Last4 = pm.Card.Last4
			method.Brand = string(pm.Card.Brand)
		}
		resolved.PaymentMethod = &method
	}
	return resolved, nil
}

// ListCardMethods returns the customer's stored card payment methods.
func (g *StripeGateway) ListCardMethods(ctx context.Context, customerID string) ([]CardMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	iter := g.api.PaymentMethods.List(params)
	var methods []CardMethod
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := CardMethod{ID: pm.ID}
		if pm.Card != nil {
			method.Last4 = pm.Card.Last4
			method.Brand = string(pm.Card.Brand)
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", wrapStripeErr(err))
	}
	return methods, nil
}

// Charge creates a payment intent against the stored method and confirms it
// immediately. OffSession is false: the customer is present in the flow.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(false),
		Confirm:       stripe.Bool(true),
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", wrapStripeErr(err))
	}
	return Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
	}, nil
}

func customerFromStripe(cus *stripe.Customer) Customer {
	return Customer{ID: cus.ID, Phone: cus.Phone, Email: cus.Email}
}

// wrapStripeErr reduces a Stripe error to its human-readable message so raw
// provider diagnostics never reach a client response.
func wrapStripeErr(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) && sErr.Msg != "" {
		return errors.New(sErr.Msg)
	}
	return err
}

func isResourceMissing(err error) bool {
	var sErr *stripe.Error
	return errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodeResourceMissing
}

func isInvalidRequest(err error) bool {
	var sErr *stripe.Error
	return errors.As(err, &sErr) && sErr.Type == stripe.ErrorTypeInvalidRequest
}
