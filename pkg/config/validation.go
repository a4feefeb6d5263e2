package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittobox/internal/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}

	if cfg.Telemetry.Profiling.Enabled {
		if cfg.Telemetry.Profiling.Endpoint == "" {
			return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
		}
		if err := telemetry.ValidateProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			return fmt.Errorf("telemetry.profiling.profile_types: %w", err)
		}
	}

	if cfg.Storage.MaxUploadSize > cfg.Storage.Quota {
		return fmt.Errorf("storage.max_upload_size (%s) exceeds storage.quota (%s)",
			cfg.Storage.MaxUploadSize, cfg.Storage.Quota)
	}

	if cfg.API.Enabled && cfg.Server.Port != 0 && cfg.API.Port == cfg.Server.Port {
		return fmt.Errorf("api.port and server.port are both %d", cfg.Server.Port)
	}

	return nil
}

// formatValidationErrors flattens validator errors into one message naming
// each failing field and tag.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed '%s' validation", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
