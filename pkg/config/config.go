// Package config decodes YAML configuration files, expanding ${VAR}
// environment references before parsing.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator lets a config type veto bad values after decoding.
type Validator interface {
	Validate() error
}

// Load decodes the YAML file at path into target, which should arrive
// pre-populated with defaults. A missing file is not an error: ansuz
// runs fine on compiled-in defaults, so the target is left untouched
// and only validated. If target implements Validator it is validated
// either way.
func Load[T any](path string, target *T) error {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), target); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validate: %w", err)
		}
	}
	return nil
}
