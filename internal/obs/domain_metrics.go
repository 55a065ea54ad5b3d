package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// VerificationTotal counts SMS verification operations by stage and result.
	// Stage is "start" or "check"; result carries the provider status or "error".
	VerificationTotal *prometheus.CounterVec
	// PaymentIntentTotal counts charge attempts by final intent status.
	PaymentIntentTotal *prometheus.CounterVec
	// OnboardingTotal counts customer onboarding outcomes.
	OnboardingTotal *prometheus.CounterVec
	// StripeWebhookTotal counts inbound Stripe webhook events by type and outcome.
	StripeWebhookTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		VerificationTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_total",
			Help:      "Count of SMS verification operations by stage and result.",
		}, []string{"stage", "result"}))
		PaymentIntentTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of charge attempts by resulting intent status.",
		}, []string{"result"}))
		OnboardingTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_total",
			Help:      "Count of customer onboarding outcomes.",
		}, []string{"result"}))
		StripeWebhookTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stripe_webhook_total",
			Help:      "Count of inbound Stripe webhook events by type and outcome.",
		}, []string{"type", "result"}))
	})
}

// CountVerification is a nil-safe helper for recording verification outcomes.
func CountVerification(stage, result string) {
	if VerificationTotal != nil {
		VerificationTotal.WithLabelValues(stage, result).Inc()
	}
}

// CountPaymentIntent is a nil-safe helper for recording charge outcomes.
func CountPaymentIntent(result string) {
	if PaymentIntentTotal != nil {
		PaymentIntentTotal.WithLabelValues(result).Inc()
	}
}

// CountOnboarding is a nil-safe helper for recording onboarding outcomes.
func CountOnboarding(result string) {
	if OnboardingTotal != nil {
		OnboardingTotal.WithLabelValues(result).Inc()
	}
}

// CountStripeWebhook is a nil-safe helper for recording webhook outcomes.
func CountStripeWebhook(eventType, result string) {
	if StripeWebhookTotal != nil {
		StripeWebhookTotal.WithLabelValues(eventType, result).Inc()
	}
}
