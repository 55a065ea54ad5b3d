package verify

import (
	"context"
	"errors"
)

// Challenge lifecycle statuses reported by the SMS provider.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// ErrInvalidNumber is returned by Lookup when the provider rejects the phone
// number as syntactically or regionally invalid.
var ErrInvalidNumber = errors.New("verify: phone number rejected by lookup")

// Verifier abstracts the SMS verification provider: number validation plus a
// one-time-code challenge scoped to a phone number.
type Verifier interface {
	// Lookup validates the phone number and returns its normalised E.164 form.
	Lookup(ctx context.Context, phone string) (string, error)
	// Start requests a one-time code be delivered over SMS and returns the
	// challenge status. Callers must only proceed when it is StatusPending.
	Start(ctx context.Context, phone string) (string, error)
	// Check submits a code against the pending challenge for the number and
	// returns the resulting status. Only StatusApproved authorises a charge.
	Check(ctx context.Context, phone, code string) (string, error)
}
