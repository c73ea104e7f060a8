package config

import (
	"os"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("Region = %q, want %q", cfg.Region, "us-east-1")
	}
	if cfg.DefaultMaxTokens.Anthropic != 1024 {
		t.Errorf("DefaultMaxTokens.Anthropic = %d, want 1024", cfg.DefaultMaxTokens.Anthropic)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
}

func TestReadWriteTimeoutConversion(t *testing.T) {
	cfg := Default()
	if cfg.ReadTimeout().Seconds() != 60 {
		t.Errorf("ReadTimeout() = %v, want 60s", cfg.ReadTimeout())
	}
	if cfg.WriteTimeout().Seconds() != 1800 {
		t.Errorf("WriteTimeout() = %v, want 1800s", cfg.WriteTimeout())
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/config.toml")
	if err != nil {
		t.Fatalf("a missing config file should not be an error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default %q", cfg.ListenAddr, ":8080")
	}
}

func TestLoadParsesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gateway.toml"
	body := `
listen_addr = ":9090"
region = "eu-west-1"

[retry]
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q, want %q", cfg.Region, "eu-west-1")
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	// Fields absent from the file keep their defaults.
	if cfg.DefaultMaxTokens.OpenAI != 1024 {
		t.Errorf("DefaultMaxTokens.OpenAI = %d, want default 1024", cfg.DefaultMaxTokens.OpenAI)
	}
}

func TestEnvOverridesTakePriorityOverFileAndDefaults(t *testing.T) {
	t.Setenv("REGION", "ap-southeast-2")
	t.Setenv("RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("GATEWAY_LISTEN_ADDR", ":7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "ap-southeast-2" {
		t.Errorf("Region = %q, want env override", cfg.Region)
	}
	if cfg.Retry.MaxAttempts != 9 {
		t.Errorf("Retry.MaxAttempts = %d, want 9", cfg.Retry.MaxAttempts)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
}

func TestEnvOverrideIgnoresUnparsableInt(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want default 3 when env value is unparsable", cfg.Retry.MaxAttempts)
	}
}

func TestServerAPIKeyExpandsEmbeddedEnvVar(t *testing.T) {
	t.Setenv("SOME_SECRET_SOURCE", "sk-expanded-value")
	dir := t.TempDir()
	path := dir + "/gateway.toml"
	body := `server_api_key = "${SOME_SECRET_SOURCE}"` + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerAPIKey != "sk-expanded-value" {
		t.Errorf("ServerAPIKey = %q, want expanded value", cfg.ServerAPIKey)
	}
}

func TestLoadOrDefaultNeverErrors(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/path/to/config.toml")
	if cfg == nil {
		t.Fatal("LoadOrDefault should never return nil")
	}
}
