package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CART_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.CartTTLMinutes != 120 {
		t.Fatalf("expected default cart ttl 120, got %d", cfg.CartTTLMinutes)
	}
}

func TestLoadRejectsBadCartTTL(t *testing.T) {
	t.Setenv("CART_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.CartTTLMinutes != 120 {
		t.Fatalf("expected fallback cart ttl 120 for negative value, got %d", cfg.CartTTLMinutes)
	}
}
