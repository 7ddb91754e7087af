// Package settings manages persistent user settings for the cmlkit CLI.
//
// Settings are the lowest-precedence source of configuration: command-line
// flags and CML_* environment variables override them. Passwords are never
// stored here.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newtron-network/cmlkit/pkg/util"
)

// Fallbacks used when a setting is empty.
const (
	DefaultPollInterval       = 2 * time.Second
	DefaultRequestTimeout     = 30 * time.Second
	DefaultConvergenceTimeout = 120 * time.Second
	DefaultUsername           = "admin"
)

// Settings holds persistent user preferences
type Settings struct {
	// BaseURL is the platform controller, e.g. https://cml.example.com
	BaseURL  string `json:"base_url,omitempty"`
	Username string `json:"username,omitempty"`

	// VerifySSL is nil when unset, which means verify.
	VerifySSL *bool `json:"verify_ssl,omitempty"`

	// Durations are kept in time.ParseDuration form ("2s", "2m").
	PollInterval       string `json:"poll_interval,omitempty"`
	RequestTimeout     string `json:"request_timeout,omitempty"`
	ConvergenceTimeout string `json:"convergence_timeout,omitempty"`

	// TemplateDir and ConfigletDir add YAML files on top of the built-ins.
	TemplateDir  string `json:"template_dir,omitempty"`
	ConfigletDir string `json:"configlet_dir,omitempty"`

	// AuditLog is the audit file; RedisAddr, when set, takes precedence.
	AuditLog  string `json:"audit_log,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty"`

	// ConsoleHost enables console_exec through the platform's SSH console server.
	ConsoleHost       string `json:"console_host,omitempty"`
	ConsoleKnownHosts string `json:"console_known_hosts,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cmlkit_settings.json"
	}
	return filepath.Join(home, ".cmlkit", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields empty
// settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

// GetUsername returns the username (with fallback)
func (s *Settings) GetUsername() string {
	if s.Username != "" {
		return s.Username
	}
	return DefaultUsername
}

// GetVerifySSL reports whether TLS certificates are checked.
func (s *Settings) GetVerifySSL() bool {
	return s.VerifySSL == nil || *s.VerifySSL
}

// GetPollInterval returns the lifecycle poll interval (with fallback)
func (s *Settings) GetPollInterval() time.Duration {
	return durationOr(s.PollInterval, DefaultPollInterval)
}

// GetRequestTimeout returns the per-attempt transport timeout (with fallback)
func (s *Settings) GetRequestTimeout() time.Duration {
	return durationOr(s.RequestTimeout, DefaultRequestTimeout)
}

// GetConvergenceTimeout returns how long lifecycle waits may take (with fallback)
func (s *Settings) GetConvergenceTimeout() time.Duration {
	return durationOr(s.ConvergenceTimeout, DefaultConvergenceTimeout)
}

func durationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// field binds a settings key to its struct field.
type field struct {
	get func(*Settings) string
	set func(*Settings, string) error
}

func stringField(p func(*Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			*p(s) = v
			return nil
		},
	}
}

func durationField(p func(*Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			if v != "" {
				d, err := time.ParseDuration(v)
				if err != nil || d <= 0 {
					return util.NewValidationError(fmt.Sprintf("%q is not a positive duration", v))
				}
			}
			*p(s) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"base_url": {
		get: func(s *Settings) string { return s.BaseURL },
		set: func(s *Settings, v string) error {
			s.BaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
			return nil
		},
	},
	"username": stringField(func(s *Settings) *string { return &s.Username }),
	"verify_ssl": {
		get: func(s *Settings) string {
			if s.VerifySSL == nil {
				return ""
			}
			return strconv.FormatBool(*s.VerifySSL)
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				s.VerifySSL = nil
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return util.NewValidationError(fmt.Sprintf("%q is not a boolean", v))
			}
			s.VerifySSL = &b
			return nil
		},
	},
	"poll_interval":       durationField(func(s *Settings) *string { return &s.PollInterval }),
	"request_timeout":     durationField(func(s *Settings) *string { return &s.RequestTimeout }),
	"convergence_timeout": durationField(func(s *Settings) *string { return &s.ConvergenceTimeout }),
	"template_dir":        stringField(func(s *Settings) *string { return &s.TemplateDir }),
	"configlet_dir":       stringField(func(s *Settings) *string { return &s.ConfigletDir }),
	"audit_log":           stringField(func(s *Settings) *string { return &s.AuditLog }),
	"redis_addr":          stringField(func(s *Settings) *string { return &s.RedisAddr }),
	"console_host":        stringField(func(s *Settings) *string { return &s.ConsoleHost }),
	"console_known_hosts": stringField(func(s *Settings) *string { return &s.ConsoleKnownHosts }),
	"log_level": {
		get: func(s *Settings) string { return s.LogLevel },
		set: func(s *Settings, v string) error {
			switch v {
			case "", "debug", "info", "warn", "error":
				s.LogLevel = v
				return nil
			}
			return util.NewValidationError(fmt.Sprintf("log level %q is not one of debug, info, warn, error", v))
		},
	},
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value of key; empty means unset.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", unknownKey(key)
	}
	return f.get(s), nil
}

// Set validates and stores value under key. An empty value unsets it.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return unknownKey(key)
	}
	return f.set(s, value)
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown setting %q (known: %s): %w", key, strings.Join(Keys(), ", "), util.ErrNotFound)
}
