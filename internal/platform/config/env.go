// Package config loads service configuration from the process environment.
// Every arena variable carries the ICHOR_ARENA_ prefix; defaults live on the
// struct tags next to the fields they configure.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from environment variables according to its
// `env` struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("load config from environment: %w", err)
	}
	return nil
}
