package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PinMaxAttempts != 5 {
		t.Fatalf("expected 5 pin attempts, got %d", cfg.PinMaxAttempts)
	}
	if cfg.PinLockout != 15*time.Minute {
		t.Fatalf("expected 15m lockout, got %s", cfg.PinLockout)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Fatalf("expected 30s provider timeout, got %s", cfg.ProviderTimeout)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadDurationOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "7")
	t.Setenv("PIN_LOCKOUT", "2m")
	t.Setenv("PIN_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProviderTimeout != 7*time.Second {
		t.Fatalf("expected 7s, got %s", cfg.ProviderTimeout)
	}
	if cfg.PinLockout != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", cfg.PinLockout)
	}
	if cfg.PinMaxAttempts != 3 {
		t.Fatalf("expected 3, got %d", cfg.PinMaxAttempts)
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing DATABASE_URL to fail")
	}
}

func TestLoadRejectsBadInteger(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PIN_MAX_ATTEMPTS", "five")

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid PIN_MAX_ATTEMPTS to fail")
	}
}
