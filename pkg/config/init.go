package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoBox Configuration File
#
# Every setting can be overridden with an environment variable:
# DITTOBOX_<SECTION>_<KEY>, e.g. DITTOBOX_STORAGE_QUOTA=20MiB
#
# Sizes accept human-readable units (10MiB, 500KB).
# Durations use Go syntax (30s, 5m).

`

// InitConfig writes the default configuration to the default location and
// returns the path written. An existing file is only replaced with force.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	data, err := RenderDefault()
	if err != nil {
		return err
	}
	return writeConfigFile(path, data)
}

// RenderDefault returns the commented default configuration as YAML.
func RenderDefault() ([]byte, error) {
	return Render(GetDefaultConfig())
}

// Render returns cfg as YAML preceded by the standard header.
func Render(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
