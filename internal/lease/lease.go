package lease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CustomerLease serialises the check-and-charge sequence per customer so two
// near-simultaneous attempts cannot both pass the single-payment-method check
// and double charge. Without a Redis client the lease is a no-op and the
// service runs with the reference behavior.
type CustomerLease struct {
	R            *redis.Client
	TTL          time.Duration
	RetryBackoff time.Duration
}

// WithCustomer executes fn while holding the lease for the given customer.
// The lease is released when fn returns, even on error. Acquisition retries
// until the context is cancelled.
func (l CustomerLease) WithCustomer(ctx context.Context, customerID string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lease: callback not provided")
	}
	if l.R == nil {
		return fn(ctx)
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errors.New("lease: customer id required")
	}

	ttl := l.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	key := "charge-lease:" + customerID
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release deletes the lease only when the token still matches, so an expired
// lease taken over by another request is never released from here.
func (l CustomerLease) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
