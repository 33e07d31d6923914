package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/eduvox/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	// Development enables human-friendly output.
	Development Environment = "development"

	// Production enables machine-friendly output.
	Production Environment = "production"
)

// FromEnv reads the environment from EDUVOX_ENV, defaulting to development.
func FromEnv() Environment {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envvar.EduvoxEnv))) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
