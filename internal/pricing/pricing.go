package pricing

import (
	"context"
	"encoding/json"
	"errors"
)

// Quote is the server-computed amount to charge, in minor units.
type Quote struct {
	Amount   int64
	Currency string
}

// Quoter prices a cart server-side. The cart travels as raw JSON because its
// shape belongs to the storefront, not to the checkout flow; implementations
// must never trust client-supplied amounts.
type Quoter interface {
	Quote(ctx context.Context, items json.RawMessage) (Quote, error)
}

// Fixed quotes a configured amount regardless of cart contents, matching the
// demo's hardcoded purchase. It still rejects carts that are not valid JSON so
// malformed submissions fail before any charge is attempted.
type Fixed struct {
	Amount   int64
	Currency string
}

// Quote implements Quoter.
func (f Fixed) Quote(_ context.Context, items json.RawMessage) (Quote, error) {
	if f.Amount <= 0 {
		return Quote{}, errors.New("pricing: fixed amount not configured")
	}
	if len(items) > 0 && !json.Valid(items) {
		return Quote{}, errors.New("pricing: cart is not valid JSON")
	}
	return Quote{Amount: f.Amount, Currency: f.Currency}, nil
}
