// Package config loads and resolves the gateway's runtime configuration: a
// TOML root document with environment-variable substitution and direct
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	ListenAddr   string `toml:"listen_addr"`
	ServerAPIKey string `toml:"server_api_key"`
	LogLevel     string `toml:"log_level"`

	OpenAI  OpenAIConfig  `toml:"openai"`
	Bedrock BedrockConfig `toml:"bedrock"`

	Region      string `toml:"region"`
	FilesBucket string `toml:"files_bucket"`

	DefaultMaxTokens DefaultMaxTokensConfig `toml:"default_max_tokens"`
	Retry            RetryConfig            `toml:"retry"`
	Files            FilesConfig            `toml:"files"`
	KB               KBConfig               `toml:"kb"`

	ReadTimeoutSeconds  int `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `toml:"write_timeout_seconds"` // must exceed the longest expected SSE stream
}

// ReadTimeout/WriteTimeout convert the TOML second fields into the
// time.Duration net/http.Server wants.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// OpenAIConfig holds the OpenAI routing-path credential and endpoint.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// BedrockConfig enumerates the supported credential sources, tried in
// priority order by provider.NewBedrockClient: static keys, profile name,
// assumed role, web-identity token, else the ambient chain.
type BedrockConfig struct {
	StaticAccessKeyID     string `toml:"static_access_key_id"`
	StaticSecretAccessKey string `toml:"static_secret_access_key"`
	StaticSessionToken    string `toml:"static_session_token"`

	ProfileName string `toml:"profile_name"`

	AssumeRoleARN             string `toml:"assume_role_arn"`
	AssumeRoleExternalID      string `toml:"assume_role_external_id"`
	AssumeRoleSessionName     string `toml:"assume_role_session_name"`
	AssumeRoleDurationSeconds int    `toml:"assume_role_duration_seconds"`

	WebIdentityTokenFile string `toml:"web_identity_token_file"`
	WebIdentityRoleARN   string `toml:"web_identity_role_arn"`
}

// DefaultMaxTokensConfig supplies the family-specific max_tokens default
// applied when a request omits it (boundary behavior: Anthropic requires a
// non-absent max_tokens).
type DefaultMaxTokensConfig struct {
	OpenAI    int32 `toml:"openai"`
	Anthropic int32 `toml:"anthropic"`
	Titan     int32 `toml:"titan"`
}

// RetryConfig mirrors resilience.RetryConfig in config-file/env-var form.
type RetryConfig struct {
	MaxAttempts    int `toml:"max_attempts"`
	WaitMinSeconds int `toml:"wait_min_seconds"`
	WaitMaxSeconds int `toml:"wait_max_seconds"`
}

// Duration helpers for resilience.RetryConfig construction.
func (r RetryConfig) WaitMin() time.Duration { return time.Duration(r.WaitMinSeconds) * time.Second }
func (r RetryConfig) WaitMax() time.Duration { return time.Duration(r.WaitMaxSeconds) * time.Second }

// FilesConfig bounds the file-context injector and configures at-rest
// encryption for stored artifacts.
type FilesConfig struct {
	MaxFileBytes    int64  `toml:"max_file_bytes"`
	MaxContextBytes int    `toml:"max_context_bytes"`
	RootSecret      string `toml:"root_secret"` // base hex/opaque secret for at-rest encryption; empty disables it
}

// KBConfig configures the optional knowledge-base subsystem.
type KBConfig struct {
	PostgresDSN string `toml:"postgres_dsn"` // optional snippet cache; empty disables it
}

// Default returns a configuration with the documented defaults applied.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Region:     "us-east-1",
		DefaultMaxTokens: DefaultMaxTokensConfig{
			OpenAI:    1024,
			Anthropic: 1024,
			Titan:     1024,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			WaitMinSeconds: 1,
			WaitMaxSeconds: 10,
		},
		Files: FilesConfig{
			MaxFileBytes:    10 * 1024 * 1024,
			MaxContextBytes: 200 * 1024,
		},
		ReadTimeoutSeconds:  60,
		WriteTimeoutSeconds: 1800,
	}
}

// Load reads a TOML document at path over the default configuration, then
// applies environment-variable substitution and overrides. A missing file
// is not an error: the defaults (plus env overrides) are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadOrDefault is Load with file errors swallowed, for callers (e.g. a CLI
// flag default) that would rather start with sane defaults than fail.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// applyEnvOverrides expands ${VAR} patterns already present in string
// fields, then applies direct environment-variable overrides: the
// externally documented names (SERVER_API_KEY, OPENAI_API_KEY, REGION, ...)
// unprefixed, plus a GATEWAY_* prefix for deployment-local knobs.
func (c *Config) applyEnvOverrides() {
	c.ServerAPIKey = expandEnv(c.ServerAPIKey)
	c.OpenAI.APIKey = expandEnv(c.OpenAI.APIKey)
	c.Bedrock.StaticAccessKeyID = expandEnv(c.Bedrock.StaticAccessKeyID)
	c.Bedrock.StaticSecretAccessKey = expandEnv(c.Bedrock.StaticSecretAccessKey)

	if v := os.Getenv("SERVER_API_KEY"); v != "" {
		c.ServerAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("FILES_BUCKET"); v != "" {
		c.FilesBucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("RETRY_WAIT_MIN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.WaitMinSeconds = n
		}
	}
	if v := os.Getenv("RETRY_WAIT_MAX_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.WaitMaxSeconds = n
		}
	}
	if v := os.Getenv("DEFAULT_MAX_TOKENS_OPENAI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultMaxTokens.OpenAI = int32(n)
		}
	}
	if v := os.Getenv("DEFAULT_MAX_TOKENS_ANTHROPIC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultMaxTokens.Anthropic = int32(n)
		}
	}
	if v := os.Getenv("DEFAULT_MAX_TOKENS_TITAN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultMaxTokens.Titan = int32(n)
		}
	}

	if v := os.Getenv("GATEWAY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("GATEWAY_BEDROCK_PROFILE_NAME"); v != "" {
		c.Bedrock.ProfileName = v
	}
	if v := os.Getenv("GATEWAY_BEDROCK_ASSUME_ROLE_ARN"); v != "" {
		c.Bedrock.AssumeRoleARN = v
	}
	if v := os.Getenv("GATEWAY_FILES_ROOT_SECRET"); v != "" {
		c.Files.RootSecret = v
	}
	if v := os.Getenv("GATEWAY_KB_POSTGRES_DSN"); v != "" {
		c.KB.PostgresDSN = v
	}
}

func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}
