// Package config resolves the process-wide settings once at startup. The
// resulting Config is passed by value and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DefaultEndpoint       = "https://network-security-system-using-mlops-production.up.railway.app/predict"
	DefaultPort           = "8080"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxUploadBytes = 10 << 20
	DefaultSubmitsPerMin  = 30
)

type Config struct {
	Endpoint       string
	Timeout        time.Duration
	Port           string
	LogLevel       string
	MaxUploadBytes int64
	SubmitsPerMin  int
	TLSDomains     []string
	ACMEEmail      string
	Production     bool
}

// FromEnv reads the environment through getenv. Unset or unparsable values
// fall back to defaults.
func FromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		Endpoint:       DefaultEndpoint,
		Timeout:        DefaultTimeout,
		Port:           DefaultPort,
		LogLevel:       getenv("LOG_LEVEL"),
		MaxUploadBytes: DefaultMaxUploadBytes,
		SubmitsPerMin:  DefaultSubmitsPerMin,
		ACMEEmail:      getenv("ACME_EMAIL"),
		Production:     getenv("APP_ENV") == "production",
	}
	if v := getenv("PREDICT_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if d, err := time.ParseDuration(getenv("PREDICT_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if n, err := strconv.ParseInt(getenv("MAX_UPLOAD_BYTES"), 10, 64); err == nil && n > 0 {
		cfg.MaxUploadBytes = n
	}
	if n, err := strconv.Atoi(getenv("SUBMITS_PER_MINUTE")); err == nil && n >= 0 {
		cfg.SubmitsPerMin = n
	}
	for _, d := range strings.Split(getenv("TLS_DOMAINS"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			cfg.TLSDomains = append(cfg.TLSDomains, d)
		}
	}
	return cfg
}

// NewFlagSet binds flags to cfg. Current field values become the defaults,
// so environment settings apply unless a flag overrides them.
func (c *Config) NewFlagSet() *pflag.FlagSet {
	flagSet := &pflag.FlagSet{}

	flagSet.StringVarP(&c.Endpoint, "endpoint", "e",
		c.Endpoint,
		"URL of the batch prediction service.")
	flagSet.DurationVar(&c.Timeout, "timeout",
		c.Timeout,
		"Timeout for one prediction request.")
	flagSet.StringVar(&c.LogLevel, "log-level",
		c.LogLevel,
		"Log level: debug, info, warn, error.")

	return flagSet
}

// NewServeFlagSet binds the flags that only matter when serving the UI.
func (c *Config) NewServeFlagSet() *pflag.FlagSet {
	flagSet := &pflag.FlagSet{}

	flagSet.StringVarP(&c.Port, "port", "p",
		c.Port,
		"Port to listen on for plain HTTP.")
	flagSet.Int64Var(&c.MaxUploadBytes, "max-upload-bytes",
		c.MaxUploadBytes,
		"Largest accepted CSV upload in bytes.")
	flagSet.IntVar(&c.SubmitsPerMin, "submits-per-minute",
		c.SubmitsPerMin,
		"Submissions allowed per client IP per minute. 0 disables the limit.")
	flagSet.StringSliceVar(&c.TLSDomains, "tls-domain",
		c.TLSDomains,
		"Serve HTTPS with ACME certificates for this domain. Repeatable.")

	return flagSet
}

// Validate checks the values that would otherwise fail on first use.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("config: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("config: endpoint has no host")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: max upload bytes must be positive")
	}
	if c.SubmitsPerMin < 0 {
		return errors.New("config: submits per minute must not be negative")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: invalid port %q", c.Port)
	}
	return nil
}
