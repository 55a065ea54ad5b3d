package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Purchase is the fixed amount and currency charged by this demo. Amount is in
// minor units. Replace with real inventory/cart pricing before going live.
type Purchase struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StaticDir          string
	CORSAllowedOrigins []string

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string

	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioVerifyServiceID string

	// RedisURL is optional. Without it the customer lease, webhook replay
	// guard and rate limiting are disabled and the service runs lease-less.
	RedisURL string

	Purchase Purchase

	ProviderTimeout  time.Duration
	LeaseTTL         time.Duration
	WebhookReplayTTL time.Duration
	VerifyRateWindow time.Duration
	VerifyRateMax    int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "4242"),
		StaticDir:          valueOrDefault(k.String("STATIC_DIR"), "web"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StripeSecretKey:      k.String("STRIPE_SECRET_KEY"),
		StripePublishableKey: k.String("STRIPE_PUBLISHABLE_KEY"),
		StripeWebhookSecret:  k.String("STRIPE_WEBHOOK_SECRET"),

		TwilioAccountSID:      k.String("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       k.String("TWILIO_AUTH_TOKEN"),
		TwilioVerifyServiceID: k.String("TWILIO_VERIFY_SERVICE_SID"),

		RedisURL: k.String("REDIS_URL"),

		Purchase: Purchase{
			Amount:   parseInt64(k.String("PURCHASE_AMOUNT"), 1099),
			Currency: strings.ToUpper(valueOrDefault(k.String("PURCHASE_CURRENCY"), "USD")),
		},

		ProviderTimeout:  parseDuration(k.String("PROVIDER_TIMEOUT"), "15s"),
		LeaseTTL:         parseDuration(k.String("CHARGE_LEASE_TTL"), "30s"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		VerifyRateWindow: parseDuration(k.String("VERIFY_RATE_WINDOW"), "5m"),
		VerifyRateMax:    parseInt(k.String("VERIFY_RATE_MAX"), 5),
	}

	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripePublishableKey == "" {
		return nil, errors.New("STRIPE_PUBLISHABLE_KEY is required")
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return nil, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
	}
	if cfg.TwilioVerifyServiceID == "" {
		return nil, errors.New("TWILIO_VERIFY_SERVICE_SID is required")
	}
	if cfg.Purchase.Amount <= 0 {
		return nil, errors.New("PURCHASE_AMOUNT must be a positive integer in minor units")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "4242"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
