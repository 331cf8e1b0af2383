package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OIDCGATE_CLIENT_ID.
const EnvPrefix = "oidcgate"

// Defaults applied before the YAML file is read.
const (
	DefaultCallbackPath = "/callback"
	DefaultJWKSPath     = "/.well-known/jwks.json"
	DefaultHSTSMaxAge   = 31536000
)

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Server           ServerConfig `yaml:"server"`
	OIDC             OIDCConfig   `yaml:"oidc"`
	UnprotectedPaths []string     `yaml:"unprotected_paths"`
}

// ServerConfig controls listener and TLS concerns.
type ServerConfig struct {
	ListenAddr      string    `yaml:"listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	TLS             TLSConfig `yaml:"tls"`
	HSTSMaxAge      int       `yaml:"hsts_max_age"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains  []string `yaml:"domains"`
	Email    string   `yaml:"email"`
	CacheDir string   `yaml:"cache_dir"`
}

// OIDCConfig identifies the application to its identity provider.
type OIDCConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// BaseURL is both the endpoint root and the expected token issuer.
	BaseURL      string `yaml:"base_url"`
	CallbackPath string `yaml:"callback_path"`
	JWKSPath     string `yaml:"jwks_path"`
	Discovery    bool   `yaml:"discovery"`
}

// envOverrides lists the settings that may be overridden from the environment.
// Unset variables leave the pointer fields nil.
type envOverrides struct {
	ListenAddr       *string  `envconfig:"listen_addr"`
	HTTPListenAddr   *string  `envconfig:"http_listen_addr"`
	HTTPSListenAddr  *string  `envconfig:"https_listen_addr"`
	DevMode          *bool    `envconfig:"dev_mode"`
	TLSDomains       []string `envconfig:"tls_domains"`
	TLSEmail         *string  `envconfig:"tls_email"`
	ClientID         *string  `envconfig:"client_id"`
	ClientSecret     *string  `envconfig:"client_secret"`
	BaseURL          *string  `envconfig:"base_url"`
	CallbackPath     *string  `envconfig:"callback_path"`
	Discovery        *bool    `envconfig:"discovery"`
	UnprotectedPaths []string `envconfig:"unprotected_paths"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		// Use strict unmarshaling to detect unknown fields
		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				slog.Error("Configuration contains unknown keys", "error", err, "file", path)
				return Config{}, fmt.Errorf("invalid config: %w (check for typos or deprecated fields)", err)
			}
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		slog.Error("Failed to read environment overrides", "error", err)
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			TLS: TLSConfig{
				Domains:  []string{"localhost"},
				CacheDir: ".secrets/tls",
			},
			HSTSMaxAge: DefaultHSTSMaxAge,
		},
		OIDC: OIDCConfig{
			CallbackPath: DefaultCallbackPath,
			JWKSPath:     DefaultJWKSPath,
		},
		UnprotectedPaths: []string{"/health"},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	setString(&cfg.Server.ListenAddr, env.ListenAddr)
	setString(&cfg.Server.HTTPListenAddr, env.HTTPListenAddr)
	setString(&cfg.Server.HTTPSListenAddr, env.HTTPSListenAddr)
	setString(&cfg.Server.TLS.Email, env.TLSEmail)
	setString(&cfg.OIDC.ClientID, env.ClientID)
	setString(&cfg.OIDC.ClientSecret, env.ClientSecret)
	setString(&cfg.OIDC.BaseURL, env.BaseURL)
	setString(&cfg.OIDC.CallbackPath, env.CallbackPath)
	if env.DevMode != nil {
		cfg.Server.DevMode = *env.DevMode
	}
	if env.Discovery != nil {
		cfg.OIDC.Discovery = *env.Discovery
	}
	if env.TLSDomains != nil {
		cfg.Server.TLS.Domains = trimAll(env.TLSDomains)
	}
	if env.UnprotectedPaths != nil {
		cfg.UnprotectedPaths = trimAll(env.UnprotectedPaths)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the config and reports every problem found.
func (c Config) Validate() error {
	var result *multierror.Error
	fail := func(field, reason string, attrs ...any) {
		slog.Error("Invalid configuration value", append([]any{"field", field, "reason", reason}, attrs...)...)
		result = multierror.Append(result, fmt.Errorf("%s %s", field, reason))
	}

	if c.OIDC.ClientID == "" {
		fail("oidc.client_id", "is required")
	}
	if c.OIDC.ClientSecret == "" {
		fail("oidc.client_secret", "is required")
	}

	switch base := c.OIDC.BaseURL; {
	case base == "":
		fail("oidc.base_url", "is required")
	case !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://"):
		fail("oidc.base_url", "must start with http:// or https://", "value", base)
	case !strings.HasSuffix(base, "/"):
		fail("oidc.base_url", "must end with /", "value", base)
	}

	if !strings.HasPrefix(c.OIDC.CallbackPath, "/") {
		fail("oidc.callback_path", "must start with /", "value", c.OIDC.CallbackPath)
	}
	if !c.OIDC.Discovery && c.OIDC.JWKSPath == "" {
		fail("oidc.jwks_path", "is required unless discovery is enabled")
	}

	for i, p := range c.UnprotectedPaths {
		if !strings.HasPrefix(p, "/") {
			fail(fmt.Sprintf("unprotected_paths[%d]", i), "must start with /", "value", p)
		}
	}

	if !c.Server.DevMode {
		if len(c.Server.TLS.Domains) == 0 {
			fail("server.tls.domains", "must be provided in production")
		}
		if c.Server.TLS.CacheDir == "" {
			fail("server.tls.cache_dir", "must be provided in production")
		}
	}
	if c.Server.HSTSMaxAge < 0 {
		fail("server.hsts_max_age", "must not be negative", "value", c.Server.HSTSMaxAge)
	}

	return result.ErrorOrNil()
}

// ProtectionExemptPaths returns the configured unprotected paths plus the
// callback path, which never requires a session.
func (c Config) ProtectionExemptPaths() []string {
	out := make([]string, 0, len(c.UnprotectedPaths)+1)
	seen := make(map[string]bool, len(c.UnprotectedPaths)+1)
	for _, p := range append(append([]string(nil), c.UnprotectedPaths...), c.OIDC.CallbackPath) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
