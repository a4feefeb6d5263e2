package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	// XDG_CONFIG_HOME rather than HOME: on Windows os.UserHomeDir() reads USERPROFILE.
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if want := filepath.Join(tmpDir, "dittobox", "config.yaml"); configPath != want {
		t.Errorf("Expected %q, got %q", want, configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# DittoBox Configuration File",
		"logging:",
		"telemetry:",
		"shutdown_timeout:",
		"server:",
		"pipeline:",
		"storage:",
		"metrics:",
		"api:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestInitConfig_Force(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("garbage"), 0600); err != nil {
		t.Fatalf("Failed to overwrite config: %v", err)
	}

	if _, err := InitConfig(true); err != nil {
		t.Fatalf("InitConfig with force failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if strings.Contains(string(content), "garbage") {
		t.Error("Config was not overwritten with force")
	}
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom", "dropbox.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	if err := InitConfigToPath(path, false); err == nil {
		t.Error("Expected error without force")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Errorf("Expected success with force: %v", err)
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Storage.Quota != def.Storage.Quota {
		t.Errorf("Quota did not survive the round trip: %s", cfg.Storage.Quota)
	}
	if cfg.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("Shutdown timeout did not survive the round trip: %v", cfg.ShutdownTimeout)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) != len(def.Telemetry.Profiling.ProfileTypes) {
		t.Errorf("Profile types did not survive the round trip: %v", cfg.Telemetry.Profiling.ProfileTypes)
	}
}

func TestGeneratedConfigUsesReadableSizes(t *testing.T) {
	data, err := RenderDefault()
	if err != nil {
		t.Fatalf("RenderDefault failed: %v", err)
	}
	if !strings.Contains(string(data), "quota: 10 MiB") {
		t.Errorf("Expected human-readable quota in:\n%s", data)
	}
	if !strings.Contains(string(data), "shutdown_timeout: 30s") {
		t.Errorf("Expected human-readable timeout in:\n%s", data)
	}
}
