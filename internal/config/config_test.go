package config

import (
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INKPRESS_SESSION_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false")
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
	if cfg.UseRedisCache() {
		t.Error("UseRedisCache() = true with no redis url")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INKPRESS_SESSION_SECRET", testSecret)
	t.Setenv("INKPRESS_SERVER_HOST", "0.0.0.0")
	t.Setenv("INKPRESS_SERVER_PORT", "9001")
	t.Setenv("INKPRESS_ENV", "production")
	t.Setenv("INKPRESS_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerAddr() != "0.0.0.0:9001" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
	if cfg.IsDevelopment() {
		t.Error("production config reports development")
	}
	if !cfg.UseRedisCache() {
		t.Error("UseRedisCache() = false with redis url set")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("INKPRESS_SESSION_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load without session secret should fail")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("INKPRESS_SESSION_SECRET", "too-short")

	_, err := Load()
	if err == nil {
		t.Fatal("Load with short secret should fail")
	}
	if !strings.Contains(err.Error(), "INKPRESS_SESSION_SECRET") {
		t.Errorf("error should name the variable: %v", err)
	}
}
