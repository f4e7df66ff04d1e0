package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.FundingMargin != 1.1 {
		t.Errorf("FundingMargin = %v, want 1.1", cfg.FundingMargin)
	}
	if cfg.ResolverWindow != time.Hour {
		t.Errorf("ResolverWindow = %v, want 1h", cfg.ResolverWindow)
	}
	if !cfg.StrictSignature {
		t.Error("StrictSignature should default to true")
	}
	if cfg.Paystack.BaseURL != "https://api.paystack.co" {
		t.Errorf("Paystack.BaseURL = %q", cfg.Paystack.BaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FUNDING_MARGIN", "1.25")
	t.Setenv("RESOLVER_WINDOW", "30m")
	t.Setenv("STRICT_SIGNATURE", "false")
	t.Setenv("MPESA_CALLBACK_SECRET", "s3cret")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.FundingMargin != 1.25 {
		t.Errorf("FundingMargin = %v", cfg.FundingMargin)
	}
	if cfg.ResolverWindow != 30*time.Minute {
		t.Errorf("ResolverWindow = %v", cfg.ResolverWindow)
	}
	if cfg.StrictSignature {
		t.Error("StrictSignature not overridden")
	}
	if cfg.Mpesa.CallbackSecret != "s3cret" {
		t.Errorf("CallbackSecret = %q", cfg.Mpesa.CallbackSecret)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("FUNDING_MARGIN", "not-a-number")
	t.Setenv("RESOLVER_WINDOW", "-5m")

	cfg := Load()
	if cfg.FundingMargin != 1.1 {
		t.Errorf("FundingMargin = %v, want default for invalid input", cfg.FundingMargin)
	}
	if cfg.ResolverWindow != time.Hour {
		t.Errorf("ResolverWindow = %v, want default for invalid input", cfg.ResolverWindow)
	}
}
