package payment

import (
	"context"
	"errors"
)

// ErrUnknownCustomer is returned when the provider has no record of the
// customer identifier. Clients should clear their cached customer on this.
var ErrUnknownCustomer = errors.New("payment: unknown customer")

// Customer is the provider-owned identity this system references by id only.
type Customer struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// CardMethod is a stored card payment method attached to a customer.
type CardMethod struct {
	ID    string `json:"id"`
	Last4 string `json:"last4"`
	Brand string `json:"brand,omitempty"`
}

// SetupSession is a hosted card-collection flow. Customer and PaymentMethod
// are populated when the session is resolved after hosted completion.
type SetupSession struct {
	ID            string      `json:"id"`
	URL           string      `json:"url,omitempty"`
	Customer      *Customer   `json:"customer,omitempty"`
	PaymentMethod *CardMethod `json:"paymentMethod,omitempty"`
}

// Intent is the provider's record of a single charge attempt.
type Intent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Intent statuses this system branches on.
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusRequiresAction = "requires_action"
)

// ChargeRequest describes an immediate on-session charge of a stored card.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
}

// Gateway abstracts the operations required from the payment provider.
type Gateway interface {
	// CreateCustomer registers a customer with the normalised phone and email.
	CreateCustomer(ctx context.Context, phone, email string) (Customer, error)
	// GetCustomer fetches a customer, returning ErrUnknownCustomer when absent.
	GetCustomer(ctx context.Context, id string) (Customer, error)
	// CreateSetupSession opens a hosted setup-mode session for card collection
	// with explicit success and cancel redirect targets.
	CreateSetupSession(ctx context.Context, customerID, successURL, cancelURL string) (SetupSession, error)
	// ResolveSetupSession fetches a completed session with customer and
	// payment-method detail expanded. A nil session (with nil error) means
	// there is nothing to resolve, which is not a fault.
	ResolveSetupSession(ctx context.Context, id string) (*SetupSession, error)
	// ListCardMethods returns the customer's stored card payment methods.
	ListCardMethods(ctx context.Context, customerID string) ([]CardMethod, error)
	// Charge creates and immediately confirms an on-session payment intent.
	Charge(ctx context.Context, req ChargeRequest) (Intent, error)
}
