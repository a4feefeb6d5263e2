package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittobox/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "debug"

storage:
  root: "`+yamlSafePath(tmpDir)+`/storage"
  quota: 20MiB

pipeline:
  storage_workers: 8
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.Quota != 20*bytesize.MiB {
		t.Errorf("Expected quota 20MiB, got %s", cfg.Storage.Quota)
	}
	if cfg.Storage.MaxUploadSize != 10*bytesize.MiB {
		t.Errorf("Expected default max_upload_size 10MiB, got %s", cfg.Storage.MaxUploadSize)
	}
	if cfg.Pipeline.StorageWorkers != 8 {
		t.Errorf("Expected 8 storage workers, got %d", cfg.Pipeline.StorageWorkers)
	}
	if cfg.Pipeline.SessionHandlers != DefaultSessionHandlers {
		t.Errorf("Expected default session handlers, got %d", cfg.Pipeline.SessionHandlers)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected default port 9000, got %d", cfg.Server.Port)
	}
	if !cfg.API.Enabled {
		t.Error("Expected API enabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load should fall back to defaults, got: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Storage.Root != def.Storage.Root {
		t.Errorf("Expected default root %q, got %q", def.Storage.Root, cfg.Storage.Root)
	}
	if cfg.Pipeline.TaskQueueSize != def.Pipeline.TaskQueueSize {
		t.Errorf("Expected default task queue size, got %d", cfg.Pipeline.TaskQueueSize)
	}
	if cfg.Server.BindAddress != "0.0.0.0" {
		t.Errorf("Expected bind address 0.0.0.0, got %q", cfg.Server.BindAddress)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging: [unterminated\n")

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: LOUD\n"},
		{"bad size", "storage:\n  quota: lots\n"},
		{"bad duration", "shutdown_timeout: soon\n"},
		{"upload above quota", "storage:\n  quota: 1MiB\n  max_upload_size: 2MiB\n"},
		{"bad bind address", "server:\n  bind_address: not-an-ip\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_PlainByteCount(t *testing.T) {
	cfg, err := Load(writeConfig(t, "storage:\n  quota: 2048\n  max_upload_size: 1024\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.Quota != 2048 || cfg.Storage.MaxUploadSize != 1024 {
		t.Errorf("Expected 2048/1024, got %d/%d", cfg.Storage.Quota, cfg.Storage.MaxUploadSize)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOBOX_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOBOX_API_PORT", "9090")
	t.Setenv("DITTOBOX_STORAGE_QUOTA", "5MiB")
	t.Setenv("DITTOBOX_STORAGE_MAX_UPLOAD_SIZE", "1MiB")
	t.Setenv("DITTOBOX_PIPELINE_REJECT_WHEN_FULL", "true")
	t.Setenv("DITTOBOX_TELEMETRY_PROFILING_PROFILE_TYPES", "cpu,goroutines")

	configPath := writeConfig(t, `
logging:
  level: "INFO"

api:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected port 9090 from env var, got %d", cfg.API.Port)
	}
	// Not present in the file at all
	if cfg.Storage.Quota != 5*bytesize.MiB {
		t.Errorf("Expected quota 5MiB from env var, got %s", cfg.Storage.Quota)
	}
	if !cfg.Pipeline.RejectWhenFull {
		t.Error("Expected reject_when_full from env var")
	}
	if got := cfg.Telemetry.Profiling.ProfileTypes; len(got) != 2 || got[0] != "cpu" || got[1] != "goroutines" {
		t.Errorf("Expected profile types from env var, got %v", got)
	}
}

func TestLoad_ExplicitFalseOverridesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, "api:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.API.Enabled {
		t.Error("Expected api.enabled false from file")
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Storage.Quota = 64 * bytesize.MiB
	cfg.Server.IdleTimeout = 5 * time.Minute

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Storage.Quota != 64*bytesize.MiB {
		t.Errorf("Expected quota 64MiB, got %s", loaded.Storage.Quota)
	}
	if loaded.Server.IdleTimeout != 5*time.Minute {
		t.Errorf("Expected idle timeout 5m, got %v", loaded.Server.IdleTimeout)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if DefaultConfigExists() {
		t.Error("Expected no config in a fresh XDG_CONFIG_HOME")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "dittobox", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := GetConfigDir(); got != filepath.Join(dir, "dittobox") {
		t.Errorf("Unexpected config dir %q", got)
	}
}
