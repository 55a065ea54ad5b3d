package lease_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/verified-checkout/internal/lease"
)

func newLeaseClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithCustomerSerialisesAttempts(t *testing.T) {
	_, client := newLeaseClient(t)
	l := lease.CustomerLease{R: client, TTL: 100 * time.Millisecond, RetryBackoff: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := l.WithCustomer(ctx, "cus_123", func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstDone

	go func() {
		err := l.WithCustomer(ctx, "cus_123", func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithCustomerReleasesOnError(t *testing.T) {
	mr, client := newLeaseClient(t)
	l := lease.CustomerLease{R: client, TTL: time.Second, RetryBackoff: 5 * time.Millisecond}

	sentinel := errors.New("charge failed")
	err := l.WithCustomer(context.Background(), "cus_123", func(context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.False(t, mr.Exists("charge-lease:cus_123"), "lease must be released after fn returns")
}

func TestWithCustomerWithoutRedisRunsInline(t *testing.T) {
	l := lease.CustomerLease{}
	ran := false
	err := l.WithCustomer(context.Background(), "cus_123", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithCustomerRequiresCustomerID(t *testing.T) {
	_, client := newLeaseClient(t)
	l := lease.CustomerLease{R: client}

	err := l.WithCustomer(context.Background(), "  ", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestWithCustomerHonoursContextCancellation(t *testing.T) {
	mr, client := newLeaseClient(t)
	l := lease.CustomerLease{R: client, TTL: time.Minute, RetryBackoff: 5 * time.Millisecond}

	// Another holder keeps the lease for the whole test.
	require.NoError(t, mr.Set("charge-lease:cus_123", "other-token"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.WithCustomer(ctx, "cus_123", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
