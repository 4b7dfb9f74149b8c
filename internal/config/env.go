package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv applies BEACON_* environment variables to target. Unset
// variables leave the existing value alone.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
