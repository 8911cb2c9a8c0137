package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies process-environment overrides. The base URL is the one
// value deployments routinely vary per environment, so it gets an override.
func applyEnv(cfg *Config) {
	if v := os.Getenv(BaseURLEnv); v != "" {
		cfg.Assets.BaseURL = v
	}
}

// applyDefaults fills the optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Assets.OutputDir == "" {
		cfg.Assets.OutputDir = "dist"
	}
	if cfg.Assets.PublicPath == "" {
		cfg.Assets.PublicPath = "assets"
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = BackendFile
	}
	if cfg.Registry.ManifestPath == "" {
		cfg.Registry.ManifestPath = filepath.Join(cfg.Assets.OutputDir, "manifest.json")
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Missing or malformed base URL fails here, at startup, not when a
	// remote client fetches a broken link.
	if cfg.Assets.BaseURL == "" {
		errs = append(errs, fmt.Errorf("assets.base_url is required (or set %s)", BaseURLEnv))
	} else if u, err := url.Parse(cfg.Assets.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("assets.base_url %q must be an absolute URL with scheme and host", cfg.Assets.BaseURL))
	}

	if !cfg.Registry.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("registry.backend %q is invalid; valid values: file, postgres", cfg.Registry.Backend))
	}
	if cfg.Registry.Backend == BackendPostgres && cfg.Registry.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("registry.postgres_dsn is required when registry.backend is postgres"))
	}

	return errors.Join(errs...)
}
