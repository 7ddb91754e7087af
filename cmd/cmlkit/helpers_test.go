package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/cmlkit/pkg/catalog"
	"github.com/newtron-network/cmlkit/pkg/labgen"
	"github.com/newtron-network/cmlkit/pkg/settings"
	"github.com/newtron-network/cmlkit/pkg/util"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func resetFlags(t *testing.T) {
	t.Helper()
	savedURL, savedUser, savedInsecure := baseURL, username, insecure
	baseURL, username, insecure = "", "", false
	t.Cleanup(func() { baseURL, username, insecure = savedURL, savedUser, savedInsecure })
}

func TestConnection_Precedence(t *testing.T) {
	verify := true
	s := &settings.Settings{
		BaseURL:        "settings.lab",
		Username:       "from-settings",
		VerifySSL:      &verify,
		RequestTimeout: "5s",
	}

	t.Run("settings only", func(t *testing.T) {
		resetFlags(t)
		cfg, err := connection(s, env(nil))
		if err != nil {
			t.Fatalf("connection() error = %v", err)
		}
		if cfg.BaseURL != "https://settings.lab" || cfg.Username != "from-settings" {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.InsecureSkipVerify {
			t.Error("InsecureSkipVerify should follow verify_ssl=true")
		}
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
		}
		if cfg.Password != "" {
			t.Error("password must only come from the environment")
		}
	})

	t.Run("environment overrides settings", func(t *testing.T) {
		resetFlags(t)
		cfg, err := connection(s, env(map[string]string{
			envURL:       "https://env.lab/api/v0",
			envUsername:  "from-env",
			envPassword:  "pw",
			envVerifySSL: "false",
		}))
		if err != nil {
			t.Fatalf("connection() error = %v", err)
		}
		if cfg.BaseURL != "https://env.lab" || cfg.Username != "from-env" || cfg.Password != "pw" {
			t.Errorf("cfg = %+v", cfg)
		}
		if !cfg.InsecureSkipVerify {
			t.Error("CML_VERIFY_SSL=false should disable verification")
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		resetFlags(t)
		baseURL, username, insecure = "https://flag.lab", "from-flag", true
		cfg, err := connection(s, env(map[string]string{envURL: "https://env.lab", envUsername: "from-env"}))
		if err != nil {
			t.Fatalf("connection() error = %v", err)
		}
		if cfg.BaseURL != "https://flag.lab" || cfg.Username != "from-flag" || !cfg.InsecureSkipVerify {
			t.Errorf("cfg = %+v", cfg)
		}
	})
}

func TestConnection_Errors(t *testing.T) {
	resetFlags(t)

	if _, err := connection(&settings.Settings{}, env(nil)); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("missing URL error = %v, want ErrInvalidConfig", err)
	}
	_, err := connection(&settings.Settings{BaseURL: "cml.lab"}, env(map[string]string{envVerifySSL: "perhaps"}))
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("bad CML_VERIFY_SSL error = %v, want ErrInvalidConfig", err)
	}
}

func TestConnection_DefaultUsername(t *testing.T) {
	resetFlags(t)
	cfg, err := connection(&settings.Settings{BaseURL: "cml.lab"}, env(nil))
	if err != nil {
		t.Fatalf("connection() error = %v", err)
	}
	if cfg.Username != settings.DefaultUsername {
		t.Errorf("Username = %q, want %q", cfg.Username, settings.DefaultUsername)
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"switches=4", "area=0.0.0.1", "enabled=true", "name=core", "empty="})
	if err != nil {
		t.Fatalf("parseParams() error = %v", err)
	}
	want := map[string]any{
		"switches": 4,
		"area":     "0.0.0.1",
		"enabled":  true,
		"name":     "core",
		"empty":    "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseParams() = %#v, want %#v", got, want)
	}

	for _, bad := range []string{"novalue", "=3"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}

func TestCallArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{"none", nil, "", "", false},
		{"inline", []string{`{"title":"demo"}`}, "", `{"title":"demo"}`, false},
		{"stdin", []string{"-"}, `{"lab_id":"x"}`, `{"lab_id":"x"}`, false},
		{"invalid", []string{`{title}`}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := callArguments(tt.args, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("callArguments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("callArguments() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResultError(t *testing.T) {
	if err := resultError("list_labs", catalog.Result{OK: true}); err != nil {
		t.Errorf("resultError(ok) = %v", err)
	}
	err := resultError("start_lab", catalog.Result{Error: &catalog.ErrorBody{Code: catalog.CodeTimeout}})
	if err == nil || !strings.Contains(err.Error(), "TIMEOUT") {
		t.Errorf("resultError() = %v, want TIMEOUT", err)
	}
}

func TestDescribeParams(t *testing.T) {
	params := []labgen.Parameter{
		{Name: "switches", Type: "int", Default: 3},
		{Name: "area", Type: "string", Required: true},
	}
	if got, want := describeParams(params), "switches:int=3 area:string*"; got != want {
		t.Errorf("describeParams() = %q, want %q", got, want)
	}
}

func TestShortID(t *testing.T) {
	tests := map[string]string{
		"":                                     "",
		"n1":                                   "n1",
		"5f0c2a7e-1b2c-4d5e-8f90-123456789abc": "5f0c2a7e",
	}
	for in, want := range tests {
		if got := shortID(in); got != want {
			t.Errorf("shortID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadRegistries(t *testing.T) {
	configs, templates, err := loadRegistries(&settings.Settings{})
	if err != nil {
		t.Fatalf("loadRegistries() error = %v", err)
	}
	if len(configs.List()) == 0 || len(templates.List()) == 0 {
		t.Error("built-in configlets and templates should be loaded")
	}

	if _, _, err := loadRegistries(&settings.Settings{TemplateDir: "/nonexistent/templates"}); err == nil {
		t.Error("loadRegistries() with a missing template_dir should fail")
	}
}

func TestOfflineCatalog(t *testing.T) {
	cat, err := offlineCatalog(&settings.Settings{})
	if err != nil {
		t.Fatalf("offlineCatalog() error = %v", err)
	}
	if _, ok := cat.Definition("apply_template"); !ok {
		t.Error("offline catalog should still define apply_template")
	}
}
