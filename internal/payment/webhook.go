package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/noah-isme/verified-checkout/internal/common"
	"github.com/noah-isme/verified-checkout/internal/obs"
)

// maxWebhookBody bounds the raw payload read before signature verification.
const maxWebhookBody = 1 << 20

// Webhook handles Stripe event callbacks. The signature is verified against
// the raw body before the event is parsed; unverified payloads are never
// processed. A Redis replay guard makes redelivered events no-ops.
type Webhook struct {
	Secret    string
	Logger    zerolog.Logger
	Replay    *redis.Client
	ReplayTTL time.Duration
}

// Handle processes a single webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Webhook Error: unable to read payload", http.StatusBadRequest)
		return
	}

	// Accounts pin their own API version; a mismatch with the SDK's pinned
	// version must not reject an otherwise valid signature.
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.Logger.Warn().Err(err).Msg("webhook signature verification failed")
		obs.CountStripeWebhook("unknown", "signature_invalid")
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	if h.duplicate(r, event.ID) {
		h.Logger.Info().Str("event_id", event.ID).Msg("duplicate webhook delivery ignored")
		obs.CountStripeWebhook(string(event.Type), "replay")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		// Funds captured. Fulfil orders, e-mail receipts, etc.
		h.logIntent(event, "payment captured")
		obs.CountStripeWebhook(string(event.Type), "processed")
	case stripe.EventTypePaymentIntentPaymentFailed:
		h.logIntent(event, "payment failed")
		obs.CountStripeWebhook(string(event.Type), "processed")
	default:
		obs.CountStripeWebhook(string(event.Type), "ignored")
	}

	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// duplicate reports whether this event id has already been acknowledged.
// Replay store errors fail open: Stripe redelivers on non-2xx, so refusing the
// event here would only amplify the retries.
func (h Webhook) duplicate(r *http.Request, eventID string) bool {
	if h.Replay == nil || h.ReplayTTL <= 0 || eventID == "" {
		return false
	}
	ok, err := h.Replay.SetNX(r.Context(), "stripe-event:"+eventID, "1", h.ReplayTTL).Result()
	if err != nil {
		h.Logger.Error().Err(err).Msg("webhook replay guard unavailable")
		return false
	}
	return !ok
}

func (h Webhook) logIntent(event stripe.Event, msg string) {
	var pi stripe.PaymentIntent
	evt := h.Logger.Info().Str("event_id", event.ID).Str("event_type", string(event.Type))
	if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
		evt = evt.Str("payment_intent", pi.ID).Int64("amount", pi.Amount).Str("status", string(pi.Status))
	}
	evt.Msg(msg)
}
