// Package config reads the process environment of the docket CLI and writes
// the starter governance file.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
	"github.com/dyluth/docket/internal/governance"
	"github.com/redis/go-redis/v9"
)

// DefaultGovernancePath is where `docket config init` writes and every other
// command reads the governance file unless told otherwise.
const DefaultGovernancePath = "docket.yml"

// MaxInstanceNameLength bounds instance names, which become Redis key segments.
const MaxInstanceNameLength = 63

// InstanceNamePattern allows lowercase alphanumerics with inner hyphens.
var InstanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Env is the process configuration. Command-line flags override it.
type Env struct {
	RedisURL   string `env:"DOCKET_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Instance   string `env:"DOCKET_INSTANCE" envDefault:"default"`
	Governance string `env:"DOCKET_GOVERNANCE" envDefault:"docket.yml"`
}

// LoadEnv reads Env from the environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &e, nil
}

// Validate checks the instance name and Redis URL.
func (e *Env) Validate() error {
	if err := ValidateInstanceName(e.Instance); err != nil {
		return err
	}
	if _, err := e.RedisOptions(); err != nil {
		return err
	}
	if e.Governance == "" {
		return fmt.Errorf("governance path cannot be empty")
	}
	return nil
}

// RedisOptions parses the Redis URL.
func (e *Env) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(e.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL %q: %w", e.RedisURL, err)
	}
	return opts, nil
}

// ValidateInstanceName checks that name is usable as a key segment.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !InstanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

// InitGovernance writes the default governance file to path. An existing file
// is kept unless force is set. The written file is loaded back to prove it is
// valid.
func InitGovernance(path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(governance.DefaultYAML), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if _, err := governance.Load(path); err != nil {
		return fmt.Errorf("written %s failed validation: %w", path, err)
	}
	return nil
}
