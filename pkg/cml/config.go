// Package cml is the transport client for the simulation platform's REST API.
//
// Every remote interaction goes through Client.Call (or one of the typed
// endpoint helpers built on it), which owns authentication, retries,
// per-attempt timeouts and the mapping of HTTP status codes onto RemoteError.
package cml

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffFactor  = 2.0

	apiPrefix = "/api/v0"
)

// Config holds the connection settings for a Client. It is supplied once at
// start and never changes for the lifetime of the client.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate checks. Lab controllers
	// commonly run with self-signed certificates.
	InsecureSkipVerify bool

	// RequestTimeout bounds a single attempt, not the whole retried call.
	RequestTimeout time.Duration

	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64

	// RateLimit is the sustained requests per second allowed towards the
	// platform. Zero disables client-side limiting.
	RateLimit float64
	Burst     int
}

// Option customises a Client beyond Config.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleep replaces the function used to wait between retries. Tests use it
// to avoid real backoff delays.
func WithSleep(fn func(d time.Duration) <-chan time.Time) Option {
	return func(c *Client) {
		c.after = fn
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.RateLimit > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return cfg
}

// Validate reports missing connection settings.
func (cfg Config) Validate() error {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "base URL")
	}
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("cml: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// NormalizeBaseURL adds https:// to a bare host and strips trailing slashes
// and a trailing API prefix, so "cml.lab", "https://cml.lab/" and
// "https://cml.lab/api/v0" all resolve to the same root.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, apiPrefix)
	return u
}
