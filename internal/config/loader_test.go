package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %s, got %s", path, resolved)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected default config file to be written: %v", statErr)
	}
	if cfg.Addr != ":8080" || cfg.AdmissionTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TypingIdleTimeout != 0 {
		t.Fatalf("typing expiry should be disabled by default, got %s", cfg.TypingIdleTimeout)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: \":9000\"\ntyping_idle_timeout: 15s\njwt_secret: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LEARNWIRE_JWT_SECRET", "from-env")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.TypingIdleTimeout != 15*time.Second {
		t.Fatalf("expected typing timeout from file, got %s", cfg.TypingIdleTimeout)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("expected env to override file, got %q", cfg.JWTSecret)
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err != ErrMissingJWTSecret {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}
