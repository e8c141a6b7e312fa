// Package config holds the process-wide configuration snapshot: defaults,
// overridden by environment variables, overridden in turn by any flag the
// caller explicitly set — built once at startup.
//
// Grounded on internal/config/config.go's DefaultConfig/LoadFromEnv/
// LoadConfigWithPrecedence shape, trimmed to this spec's fields (no
// database/HTTP-timeout/WebSocket-buffer knobs — those are either dropped
// with the persistence layer or fixed spec constants, not configurable).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is an immutable snapshot, read by every component that needs it —
// passed down by explicit parameter or struct field, never reacquired from
// a package-level mutable global, per spec.md §9.
type Config struct {
	Port       uint16
	Quiet      bool
	Verbose    bool
	Secure     bool
	KeyFile    string
	CertFile   string
	SecretKey  string
	AutoRemove bool
	Reject     bool
}

// Default returns the spec-mandated defaults (port 8741, every flag off).
func Default() Config {
	return Config{
		Port: 8741,
	}
}

// Validate checks for combinations the CLI layer should have already
// rejected, as a defensive second line (spec.md §6: invalid values produce
// a startup error and non-zero exit).
func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("config: port must be nonzero")
	}
	if c.Quiet && c.Verbose {
		return fmt.Errorf("config: --quiet and --verbose are mutually exclusive")
	}
	if c.Secure {
		if c.KeyFile == "" || c.CertFile == "" {
			return fmt.Errorf("config: --secure requires both --key_file and --cert_file")
		}
		if _, err := os.Stat(c.KeyFile); err != nil {
			return fmt.Errorf("config: key_file %q: %w", c.KeyFile, err)
		}
		if _, err := os.Stat(c.CertFile); err != nil {
			return fmt.Errorf("config: cert_file %q: %w", c.CertFile, err)
		}
	}
	return nil
}

// ApplyEnv fills a field from its environment variable equivalent unless
// changed reports that the corresponding flag was explicitly set on the
// command line — flags always win over env, per the flags > env > defaults
// precedence of spec.md §10.1. changed is ordinarily *pflag.FlagSet.Changed;
// call after flag parsing, not before, since "was this flag set" can only
// be answered once parsing has run.
func ApplyEnv(c Config, changed func(name string) bool) Config {
	if !changed("port") {
		if v := os.Getenv("WSROUTER_PORT"); v != "" {
			if p, err := strconv.ParseUint(v, 10, 16); err == nil {
				c.Port = uint16(p)
			}
		}
	}
	if !changed("secret_key") {
		if v := os.Getenv("WSROUTER_SECRET_KEY"); v != "" {
			c.SecretKey = v
		}
	}
	if !changed("key_file") {
		if v := os.Getenv("WSROUTER_KEY_FILE"); v != "" {
			c.KeyFile = v
		}
	}
	if !changed("cert_file") {
		if v := os.Getenv("WSROUTER_CERT_FILE"); v != "" {
			c.CertFile = v
		}
	}
	return c
}
