package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/cmlkit/pkg/util"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetUsername(); got != DefaultUsername {
		t.Errorf("GetUsername() default = %q, want %q", got, DefaultUsername)
	}
	if !s.GetVerifySSL() {
		t.Error("GetVerifySSL() default should be true")
	}
	if got := s.GetPollInterval(); got != DefaultPollInterval {
		t.Errorf("GetPollInterval() default = %v, want %v", got, DefaultPollInterval)
	}
	if got := s.GetRequestTimeout(); got != DefaultRequestTimeout {
		t.Errorf("GetRequestTimeout() default = %v, want %v", got, DefaultRequestTimeout)
	}
	if got := s.GetConvergenceTimeout(); got != DefaultConvergenceTimeout {
		t.Errorf("GetConvergenceTimeout() default = %v, want %v", got, DefaultConvergenceTimeout)
	}
}

func TestSettings_DurationFallback(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", DefaultPollInterval},
		{"500ms", 500 * time.Millisecond},
		{"garbage", DefaultPollInterval},
		{"-1s", DefaultPollInterval},
	}
	for _, tt := range tests {
		s := &Settings{PollInterval: tt.value}
		if got := s.GetPollInterval(); got != tt.want {
			t.Errorf("GetPollInterval(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSettings_SetGet(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{"base_url", " https://cml.lab/ ", "https://cml.lab", false},
		{"username", "alice", "alice", false},
		{"verify_ssl", "false", "false", false},
		{"verify_ssl", "maybe", "", true},
		{"poll_interval", "1s", "1s", false},
		{"request_timeout", "soon", "", true},
		{"convergence_timeout", "0s", "", true},
		{"audit_log", "/var/log/cmlkit/audit.log", "/var/log/cmlkit/audit.log", false},
		{"redis_addr", "localhost:6379", "localhost:6379", false},
		{"console_host", "cml.lab", "cml.lab", false},
		{"log_level", "debug", "debug", false},
		{"log_level", "chatty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := &Settings{}
			err := s.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var verr *util.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Set() error = %v, want validation error", err)
				}
				return
			}
			got, err := s.Get(tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSettings_SetEmptyUnsets(t *testing.T) {
	s := &Settings{}
	if err := s.Set("verify_ssl", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if s.GetVerifySSL() {
		t.Error("GetVerifySSL() should be false after set")
	}
	if err := s.Set("verify_ssl", ""); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if s.VerifySSL != nil || !s.GetVerifySSL() {
		t.Error("empty value should unset verify_ssl")
	}
}

func TestSettings_UnknownKey(t *testing.T) {
	s := &Settings{}
	if err := s.Set("password", "hunter2"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Set(password) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	if len(keys) != len(fields) {
		t.Fatalf("Keys() = %d entries, want %d", len(keys), len(fields))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("Keys() not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
	for _, k := range keys {
		if k == "password" {
			t.Error("password must not be a setting")
		}
	}
}

func TestSettings_Clear(t *testing.T) {
	verify := false
	s := &Settings{
		BaseURL:   "https://cml.lab",
		Username:  "alice",
		VerifySSL: &verify,
		RedisAddr: "localhost:6379",
	}

	s.Clear()

	if s.BaseURL != "" || s.Username != "" || s.VerifySSL != nil || s.RedisAddr != "" {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	verify := false
	original := &Settings{
		BaseURL:      "https://cml.lab",
		Username:     "alice",
		VerifySSL:    &verify,
		PollInterval: "1s",
		TemplateDir:  "/etc/cmlkit/templates",
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file mode = %o, want 600", perm)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if loaded.BaseURL != original.BaseURL {
		t.Errorf("BaseURL mismatch: got %q, want %q", loaded.BaseURL, original.BaseURL)
	}
	if loaded.Username != original.Username {
		t.Errorf("Username mismatch: got %q, want %q", loaded.Username, original.Username)
	}
	if loaded.GetVerifySSL() {
		t.Error("VerifySSL should be preserved as false")
	}
	if loaded.GetPollInterval() != time.Second {
		t.Errorf("PollInterval = %v, want 1s", loaded.GetPollInterval())
	}
	if loaded.TemplateDir != original.TemplateDir {
		t.Errorf("TemplateDir mismatch: got %q, want %q", loaded.TemplateDir, original.TemplateDir)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	s, err := LoadFrom("/nonexistent/path/settings.json")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if s.BaseURL != "" || s.Username != "" {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "settings.json")

	s := &Settings{BaseURL: "https://cml.lab"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestLoadSave_Home(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() with non-existent file should not error: %v", err)
	}
	if s.BaseURL != "" {
		t.Error("Load() with non-existent file should return empty settings")
	}

	s.BaseURL = "https://saved.lab"
	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	expectedPath := filepath.Join(home, ".cmlkit", "settings.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Save() did not create file at %s", expectedPath)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if loaded.BaseURL != "https://saved.lab" {
		t.Errorf("After Save(), BaseURL = %q, want %q", loaded.BaseURL, "https://saved.lab")
	}
}

func TestDefaultSettingsPath_NoHome(t *testing.T) {
	t.Setenv("HOME", "")

	path := DefaultSettingsPath()
	if path != "cmlkit_settings.json" {
		t.Errorf("DefaultSettingsPath() with no HOME = %q, want %q", path, "cmlkit_settings.json")
	}
}

func TestLoadFrom_ReadError(t *testing.T) {
	dirAsFile := filepath.Join(t.TempDir(), "settings.json")
	if err := os.Mkdir(dirAsFile, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := LoadFrom(dirAsFile); err == nil {
		t.Error("LoadFrom() should error when path is a directory")
	}
}

func TestSaveTo_MkdirError(t *testing.T) {
	blockingFile := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blockingFile, []byte("blocking"), 0644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	path := filepath.Join(blockingFile, "subdir", "settings.json")
	s := &Settings{BaseURL: "https://cml.lab"}
	if err := s.SaveTo(path); err == nil {
		t.Error("SaveTo() should fail when directory creation fails")
	}
}
