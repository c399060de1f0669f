// Package config provides configuration structures for the ignis server.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the server configuration.
type Config struct {
	// Server settings
	Address         string        `yaml:"address" json:"address"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	MaxMessageSize  int64         `yaml:"max_message_size" json:"max_message_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Remote grid
	Grid GridConfig `yaml:"grid" json:"grid"`

	// TLS configuration for the Flight listener
	TLS TLSConfig `yaml:"tls" json:"tls"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Health check configuration
	Health HealthConfig `yaml:"health" json:"health"`

	// gRPC reflection
	Reflection bool `yaml:"reflection" json:"reflection"`

	// Number of Arrow schemas kept for reuse
	SchemaCacheSize int `yaml:"schema_cache_size" json:"schema_cache_size"`
}

// GridConfig holds the read-only connection settings of the remote grid.
type GridConfig struct {
	URL           string        `yaml:"url" json:"url"`
	Path          string        `yaml:"path" json:"path"`
	Username      string        `yaml:"username" json:"username"`
	Password      string        `yaml:"password" json:"-"`
	PageSize      int           `yaml:"page_size" json:"page_size"`
	SpaceEncoding string        `yaml:"space_encoding" json:"space_encoding"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	TLS           TLSConfig     `yaml:"tls" json:"tls"`
}

// TLSConfig represents TLS configuration.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
	CAFile             string `yaml:"ca_file" json:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type"` // bearer, jwt

	// Bearer token auth
	BearerAuth BearerAuthConfig `yaml:"bearer_auth" json:"bearer_auth"`

	// JWT auth
	JWTAuth JWTAuthConfig `yaml:"jwt_auth" json:"jwt_auth"`
}

// BearerAuthConfig represents bearer token authentication configuration.
type BearerAuthConfig struct {
	Tokens map[string]string `yaml:"tokens" json:"-"` // token -> username
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `yaml:"secret" json:"-"`
	Issuer   string `yaml:"issuer" json:"issuer"`
	Audience string `yaml:"audience" json:"audience"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 16 * 1024 * 1024 // 16MB
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if c.SchemaCacheSize <= 0 {
		c.SchemaCacheSize = 100
	}

	if err := c.Grid.validate(); err != nil {
		return err
	}

	// Validate TLS
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS cert and key files are required when TLS is enabled")
		}
	}

	// Validate auth
	if c.Auth.Enabled {
		switch c.Auth.Type {
		case "bearer":
			if len(c.Auth.BearerAuth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
		case "jwt":
			if c.Auth.JWTAuth.Secret == "" {
				return fmt.Errorf("JWT auth requires secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Health.Interval <= 0 {
		c.Health.Interval = 30 * time.Second
	}

	return nil
}

func (g *GridConfig) validate() error {
	if g.URL == "" {
		return fmt.Errorf("grid url is required")
	}
	u, err := url.Parse(g.URL)
	if err != nil {
		return fmt.Errorf("invalid grid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("grid url must use http or https, got %q", u.Scheme)
	}

	if g.Path == "" {
		g.Path = "/ignite"
	}
	if g.PageSize <= 0 {
		g.PageSize = 1024
	}
	if g.Timeout <= 0 {
		g.Timeout = 30 * time.Second
	}

	switch strings.ToLower(g.SpaceEncoding) {
	case "":
		g.SpaceEncoding = "first"
	case "first", "all":
		g.SpaceEncoding = strings.ToLower(g.SpaceEncoding)
	default:
		return fmt.Errorf("unsupported grid space encoding: %s", g.SpaceEncoding)
	}

	if g.Password != "" && g.Username == "" {
		return fmt.Errorf("grid password set without a username")
	}
	if g.TLS.CertFile != "" && g.TLS.KeyFile == "" || g.TLS.CertFile == "" && g.TLS.KeyFile != "" {
		return fmt.Errorf("grid client certificate requires both cert and key files")
	}
	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0:8815",
		LogLevel:        "info",
		MaxMessageSize:  16 * 1024 * 1024,
		ShutdownTimeout: 30 * time.Second,
		Grid: GridConfig{
			URL:           "http://localhost:8080",
			Path:          "/ignite",
			PageSize:      1024,
			SpaceEncoding: "first",
			Timeout:       30 * time.Second,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
		Auth: AuthConfig{
			Enabled: false,
			Type:    "bearer",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Health: HealthConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
		Reflection:      true,
		SchemaCacheSize: 100,
	}
}
