// Package config loads and validates attribot configuration.
//
// Configuration comes from an optional YAML file plus environment variables.
// The two secrets-bearing settings (DISCORD_BOT_TOKEN, N8N_WEBHOOK_BASE_URL)
// are usually injected via the environment and always override file values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Env var names honored by Load. These match what the deployment injects.
const (
	EnvDiscordToken = "DISCORD_BOT_TOKEN"
	EnvN8NBaseURL   = "N8N_WEBHOOK_BASE_URL"
)

// Config holds all configuration for the application.
type Config struct {
	// DiscordToken authenticates the gateway session
	DiscordToken string `yaml:"discord_token"`

	// GuildID scopes slash command registration to one guild. Empty means
	// global registration (propagation can take up to an hour).
	GuildID string `yaml:"guild_id"`

	// N8NBaseURL is the base URL of the n8n instance hosting the waiting
	// workflows, e.g. "https://n8n.example.com"
	N8NBaseURL string `yaml:"n8n_base_url"`

	// RequestTimeout bounds a single resume webhook call
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// APIPort is the port the operational HTTP server listens on
	APIPort int `yaml:"api_port"`

	// StorePath is the SQLite delivery audit database path. Empty disables
	// the audit store.
	StorePath string `yaml:"store_path"`

	// RoutesPath is the path to the YAML file declaring command routes
	RoutesPath string `yaml:"routes_path"`

	// DedupeSize is the interaction dedupe window size
	DedupeSize int `yaml:"dedupe_size"`

	// LogLevelFlags carries the raw --log-level values for logging setup
	LogLevelFlags []string `yaml:"-"`

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string `yaml:"tracing_endpoint"`

	// TracingTLSCAPath is the path to the CA certificate for TLS verification
	TracingTLSCAPath string `yaml:"tracing_tls_ca"`

	// TracingTLSInsecure skips TLS certificate verification
	TracingTLSInsecure bool `yaml:"tracing_tls_insecure"`
}

// Default values applied by Load when neither file nor flags set them.
const (
	DefaultAPIPort        = 8080
	DefaultRoutesPath     = "routes.yaml"
	DefaultRequestTimeout = 10 * time.Second
)

// applyEnvOverrides copies secret-bearing env vars over file values.
func (c *Config) applyEnvOverrides() {
	if token := os.Getenv(EnvDiscordToken); token != "" {
		c.DiscordToken = token
	}
	if base := os.Getenv(EnvN8NBaseURL); base != "" {
		c.N8NBaseURL = base
	}
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.APIPort == 0 {
		c.APIPort = DefaultAPIPort
	}
	if c.RoutesPath == "" {
		c.RoutesPath = DefaultRoutesPath
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("%s is not set", EnvDiscordToken)
	}
	if c.N8NBaseURL == "" {
		return fmt.Errorf("%s is not set", EnvN8NBaseURL)
	}
	parsed, err := url.Parse(c.N8NBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("n8n base URL %q is not a valid absolute URL", c.N8NBaseURL)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("api port %d is out of range", c.APIPort)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}
