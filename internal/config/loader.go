// Package config loads and validates the mend.yaml descriptor.
//
// Configuration precedence (highest to lowest):
//  1. MEND_* environment variables (MEND_VERIFICATION_CONTAINER_IMAGE, ...)
//  2. The mend.yaml file in the repository root
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// FileName is the descriptor file expected at the repository root.
const FileName = "mend.yaml"

// envPrefix namespaces the environment overrides.
const envPrefix = "MEND_"

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Load reads mend.yaml from repoRoot, applies MEND_* environment
// overrides, fills defaults and validates the result. A missing file is
// an error: the verification pipeline cannot be defaulted.
func Load(repoRoot string) (*Config, error) {
	path := filepath.Join(repoRoot, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration not found: %s (run 'mend init' to create one)", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a validated Config from raw YAML bytes plus the process
// environment.
func Parse(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// MEND_VERIFICATION_CONTAINER_IMAGE -> verification.container_image,
	// MEND_LIMITS_CPUS -> limits.cpus. Split on the first underscore
	// after the prefix: section, then field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults restores defaults for optional fields that unmarshalled
// to zero values.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Timeouts.VerificationStepMS == 0 {
		cfg.Timeouts.VerificationStepMS = def.Timeouts.VerificationStepMS
	}
	if cfg.Timeouts.ScoutQueryMS == 0 {
		cfg.Timeouts.ScoutQueryMS = def.Timeouts.ScoutQueryMS
	}
	if cfg.Limits.CPUs == 0 {
		cfg.Limits.CPUs = def.Limits.CPUs
	}
	if cfg.Limits.MemoryGB == 0 {
		cfg.Limits.MemoryGB = def.Limits.MemoryGB
	}
	if cfg.Retention.MaxRuns == 0 {
		cfg.Retention.MaxRuns = def.Retention.MaxRuns
	}
	if cfg.Retention.MaxAgeDays == 0 {
		cfg.Retention.MaxAgeDays = def.Retention.MaxAgeDays
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = def.ArtifactDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}

// Validate checks that a Config is complete and internally consistent.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Verification.ContainerImage) == "" {
		return ValidationError{Field: "verification.container_image", Message: "required field is empty"}
	}
	if len(cfg.Verification.Steps) == 0 {
		return ValidationError{Field: "verification.steps", Message: "must contain at least one step"}
	}
	for i, step := range cfg.Verification.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return ValidationError{
				Field:   fmt.Sprintf("verification.steps[%d].name", i),
				Message: "required field is empty",
			}
		}
		if strings.TrimSpace(step.Command) == "" {
			return ValidationError{
				Field:   fmt.Sprintf("verification.steps[%d].command", i),
				Message: "required field is empty",
			}
		}
	}
	if cfg.Timeouts.VerificationStepMS <= 0 {
		return ValidationError{Field: "timeouts.verification_step_ms", Message: "must be positive"}
	}
	if cfg.Timeouts.ScoutQueryMS <= 0 {
		return ValidationError{Field: "timeouts.scout_query_ms", Message: "must be positive"}
	}
	if cfg.Limits.CPUs <= 0 {
		return ValidationError{Field: "limits.cpus", Message: "must be positive"}
	}
	if cfg.Limits.MemoryGB <= 0 {
		return ValidationError{Field: "limits.memory_gb", Message: "must be positive"}
	}
	if cfg.Retention.MaxRuns <= 0 {
		return ValidationError{Field: "retention.max_runs", Message: "must be positive"}
	}
	if cfg.Retention.MaxAgeDays <= 0 {
		return ValidationError{Field: "retention.max_age_days", Message: "must be positive"}
	}
	return nil
}
