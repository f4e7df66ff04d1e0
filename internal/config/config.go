package config

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates everything the server reads from the environment.
type Config struct {
	Port   string
	DBPath string

	// FundingMargin is the multiplier above a request's target that must be
	// reached before the request is marked FUNDED.
	FundingMargin float64

	// ResolverWindow bounds how far back the correlation resolver's heuristic
	// fallback will look for a pending donation intent.
	ResolverWindow time.Duration

	// StrictSignature controls whether a failed webhook signature check is
	// answered with a non-200 (provider will retry) or recorded and
	// acknowledged to avoid retry storms from a misconfigured secret.
	StrictSignature bool

	Mpesa    MpesaConfig
	KopoKopo KopoKopoConfig
	Paystack PaystackConfig
}

// MpesaConfig covers both the STK push initiation client and the callback
// shared-secret check.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackSecret string
	CallbackURL    string
}

type KopoKopoConfig struct {
	APIKey string
	// PaybillNumber is surfaced in paybill donation instructions.
	PaybillNumber string
}

type PaystackConfig struct {
	BaseURL   string
	SecretKey string
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	return Config{
		Port:            valueOrDefault("PORT", "8080"),
		DBPath:          valueOrDefault("DB_PATH", "changia.db"),
		FundingMargin:   floatOrDefault("FUNDING_MARGIN", 1.1),
		ResolverWindow:  durationOrDefault("RESOLVER_WINDOW", time.Hour),
		StrictSignature: boolOrDefault("STRICT_SIGNATURE", true),
		Mpesa: MpesaConfig{
			BaseURL:        valueOrDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORTCODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			CallbackSecret: os.Getenv("MPESA_CALLBACK_SECRET"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		},
		KopoKopo: KopoKopoConfig{
			APIKey:        os.Getenv("KOPOKOPO_API_KEY"),
			PaybillNumber: valueOrDefault("KOPOKOPO_PAYBILL", "522533"),
		},
		Paystack: PaystackConfig{
			BaseURL:   valueOrDefault("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		},
	}
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func boolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
