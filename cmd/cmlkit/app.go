package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/newtron-network/cmlkit/pkg/audit"
	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/catalog"
	"github.com/newtron-network/cmlkit/pkg/cli"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/console"
	"github.com/newtron-network/cmlkit/pkg/labgen"
	"github.com/newtron-network/cmlkit/pkg/lifecycle"
	"github.com/newtron-network/cmlkit/pkg/settings"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Environment variables read at start.
const (
	envURL       = "CML_URL"
	envUsername  = "CML_USERNAME"
	envPassword  = "CML_PASSWORD"
	envVerifySSL = "CML_VERIFY_SSL"
)

// app is everything an operation needs, built once per process.
type app struct {
	client    *cml.Client
	ctrl      *lifecycle.Controller
	configs   *configlet.Registry
	templates *labgen.Registry
	audit     audit.Logger
	console   *console.Client
	catalog   *catalog.Catalog
}

func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }

// connection resolves the controller settings: flag > environment >
// settings file > defaults.
func connection(s *settings.Settings, getenv func(string) string) (cml.Config, error) {
	cfg := cml.Config{
		BaseURL:            firstNonEmpty(baseURL, getenv(envURL), s.BaseURL),
		Username:           firstNonEmpty(username, getenv(envUsername), s.GetUsername()),
		Password:           getenv(envPassword),
		InsecureSkipVerify: !s.GetVerifySSL(),
		RequestTimeout:     s.GetRequestTimeout(),
		RateLimit:          rateLimit,
	}
	if v := getenv(envVerifySSL); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return cml.Config{}, fmt.Errorf("%s=%q is not a boolean: %w", envVerifySSL, v, util.ErrInvalidConfig)
		}
		cfg.InsecureSkipVerify = !verify
	}
	if insecure {
		cfg.InsecureSkipVerify = true
	}
	if cfg.BaseURL == "" {
		return cml.Config{}, fmt.Errorf("controller URL required: use --url, %s or 'cmlkit settings set base_url <url>': %w", envURL, util.ErrInvalidConfig)
	}
	cfg.BaseURL = cml.NormalizeBaseURL(cfg.BaseURL)
	return cfg, nil
}

// promptPassword asks for the password when stdin is a terminal. Under
// `serve` stdin carries protocol traffic, so it never prompts there.
func promptPassword(cfg *cml.Config) error {
	if cfg.Password != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("password required: set %s: %w", envPassword, util.ErrInvalidConfig)
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Username, cfg.BaseURL)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	cfg.Password = string(pw)
	return nil
}

// loadRegistries loads the built-in configlets and templates plus any from
// the directories named in settings. It needs no controller.
func loadRegistries(s *settings.Settings) (*configlet.Registry, *labgen.Registry, error) {
	configs, err := configlet.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configlets: %w", err)
	}
	if s.ConfigletDir != "" {
		if err := configs.LoadDir(s.ConfigletDir); err != nil {
			return nil, nil, fmt.Errorf("loading configlets from %s: %w", s.ConfigletDir, err)
		}
	}
	templates, err := labgen.NewRegistry(configs)
	if err != nil {
		return nil, nil, fmt.Errorf("loading templates: %w", err)
	}
	if s.TemplateDir != "" {
		if err := templates.LoadDir(s.TemplateDir); err != nil {
			return nil, nil, fmt.Errorf("loading templates from %s: %w", s.TemplateDir, err)
		}
	}
	return configs, templates, nil
}

func defaultAuditPath() string {
	return filepath.Join(filepath.Dir(settings.DefaultSettingsPath()), "audit.log")
}

// openAuditLogger returns the Redis logger when redis_addr is set, otherwise
// the rotating file logger.
func openAuditLogger(s *settings.Settings) (audit.Logger, error) {
	if s.RedisAddr != "" {
		return audit.NewRedisLogger(audit.RedisConfig{Addr: s.RedisAddr, MaxLen: 100000})
	}
	path := s.AuditLog
	if path == "" {
		path = defaultAuditPath()
	}
	return audit.NewFileLogger(path, audit.RotationConfig{
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxBackups: 10,
	})
}

// offlineCatalog is a catalog without a controller, good for listing
// definitions and template operations.
func offlineCatalog(s *settings.Settings) (*catalog.Catalog, error) {
	configs, templates, err := loadRegistries(s)
	if err != nil {
		return nil, err
	}
	return catalog.New(catalog.Deps{Templates: templates, Configlets: configs}), nil
}

// connect builds the full application against the controller.
func connect(ctx context.Context, s *settings.Settings) (*app, error) {
	cfg, err := connection(s, os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := promptPassword(&cfg); err != nil {
		return nil, err
	}

	client, err := cml.New(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{client: client}
	a.ctrl = lifecycle.New(client, cache.New(), lifecycle.Config{
		PollInterval:       s.GetPollInterval(),
		ConvergenceTimeout: s.GetConvergenceTimeout(),
	})

	a.configs, a.templates, err = loadRegistries(s)
	if err != nil {
		return nil, err
	}

	if logger, err := openAuditLogger(s); err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
	} else {
		a.audit = logger
		audit.SetDefaultLogger(logger)
	}

	if s.ConsoleHost != "" {
		a.console, err = console.New(console.Config{
			Host:               s.ConsoleHost,
			Username:           cfg.Username,
			Password:           cfg.Password,
			KnownHostsFile:     s.ConsoleKnownHosts,
			InsecureSkipVerify: s.ConsoleKnownHosts == "",
		})
		if err != nil {
			util.Warnf("Console access disabled: %v", err)
		}
	}

	a.catalog = catalog.New(catalog.Deps{
		Controller: a.ctrl,
		Templates:  a.templates,
		Configlets: a.configs,
		Console:    a.console,
		Audit:      a.audit,
		User:       cfg.Username,
	})
	util.WithField("url", cfg.BaseURL).Debugf("connected as %s", cfg.Username)
	return a, nil
}

func (a *app) Close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			util.Warnf("closing audit log: %v", err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
