package dataflow

import (
	"fmt"
	"os"

	"github.com/creastat/dataflow/core"
	"gopkg.in/yaml.v3"
)

// Config holds the file-level settings shared by the operators of a job
type Config struct {
	// ScopeLevel is the deepest tag nesting operators track
	ScopeLevel int `yaml:"scope_level"`
	// Output is the spec applied to outputs declared without one
	Output core.OutputSpec `yaml:"output"`
	Runner RunnerLimits    `yaml:"runner"`
}

// RunnerLimits bounds the reference Runner
type RunnerLimits struct {
	// MaxIdleRounds is how many rounds without any fire the runner tolerates
	// before reporting a stall
	MaxIdleRounds int `yaml:"max_idle_rounds"`
}

// DefaultConfig returns the settings used for missing fields
func DefaultConfig() Config {
	return Config{
		ScopeLevel: 4,
		Output:     core.DefaultOutputSpec(),
		Runner: RunnerLimits{
			MaxIdleRounds: 3,
		},
	}
}

// LoadConfig reads a YAML config file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML config document on top of the defaults
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field of the config
func (c Config) Validate() error {
	if err := ValidateScopeLevel(c.ScopeLevel); err != nil {
		return err
	}
	if err := ValidateOutputSpec(c.Output); err != nil {
		return err
	}
	if c.Runner.MaxIdleRounds <= 0 {
		return ValidationError{
			Message: "invalid runner limits",
			Details: fmt.Sprintf("max idle rounds must be positive, got %d", c.Runner.MaxIdleRounds),
		}
	}
	return nil
}
