package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// resolveConfigPath returns the file Load would read and whether it exists.
func resolveConfigPath(path string) (string, bool) {
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}

func getConfigSource(path string) string {
	resolved, ok := resolveConfigPath(path)
	if !ok {
		return "defaults"
	}
	return resolved
}
