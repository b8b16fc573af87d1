// Package config loads the harness configuration: run-wide thread and
// iteration counts, the unsafe-name lists consumed by the classifier,
// and the behavior toggles. Loaded once at process start; a config
// error is fatal before any execution begins.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/parastress/internal/classify"
	"github.com/roach88/parastress/internal/plan"
)

// ThreadCount wraps plan.Count so YAML accepts both an integer and the
// string "auto".
type ThreadCount struct {
	plan.Count
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThreadCount) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("threads: expected integer or %q", plan.Auto)
		}
		t.Count = plan.Fixed(n)
		return nil
	}
	c, err := plan.ParseCount(s)
	if err != nil {
		return err
	}
	t.Count = c
	return nil
}

// MarshalYAML implements yaml.Marshaler, round-tripping the config
// spelling.
func (t ThreadCount) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Config is the full configuration-file contract plus the toggle set
// that arrives as command-line values.
type Config struct {
	// Threads is the global thread count: a positive integer or "auto".
	Threads ThreadCount `yaml:"threads"`

	// Iterations is the global per-thread iteration count.
	Iterations int `yaml:"iterations"`

	// SkipThreadUnsafe skips operations classified unsafe instead of
	// downgrading them to a single thread.
	SkipThreadUnsafe bool `yaml:"skip_thread_unsafe"`

	// Facility gates for the classifier's built-in unsafe list. All
	// default to enabled.
	MarkEnvAsUnsafe   bool `yaml:"mark_env_as_unsafe"`
	MarkFFIAsUnsafe   bool `yaml:"mark_ffi_as_unsafe"`
	MarkQuickAsUnsafe bool `yaml:"mark_quick_as_unsafe"`

	// UnsafeDependencies lists dependency names considered unsafe.
	UnsafeDependencies []string `yaml:"unsafe_dependencies"`

	// UnsafeCallTargets lists call targets considered unsafe, by exact
	// fully-qualified name or namespace wildcard ("pkg.*").
	UnsafeCallTargets []string `yaml:"unsafe_call_targets"`
}

// Default returns the configuration used when no file is given: one
// thread, one iteration, all facility gates enabled.
func Default() *Config {
	return &Config{
		Threads:           ThreadCount{plan.Fixed(1)},
		Iterations:        1,
		MarkEnvAsUnsafe:   true,
		MarkFFIAsUnsafe:   true,
		MarkQuickAsUnsafe: true,
	}
}

// Load reads and validates a YAML config file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the counts. "auto" is validated at resolution time.
func (c *Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	}
	if !c.Threads.IsAuto() {
		if _, err := plan.Resolve(plan.Defaults{Threads: c.Threads.Count, Iterations: c.Iterations}, plan.Override{}, nil); err != nil {
			return err
		}
	}
	return nil
}

// PlanDefaults converts the config into resolver defaults.
func (c *Config) PlanDefaults() plan.Defaults {
	return plan.Defaults{Threads: c.Threads.Count, Iterations: c.Iterations}
}

// ClassifierOptions converts the config into classifier options.
func (c *Config) ClassifierOptions() classify.Options {
	return classify.Options{
		UnsafeDependencies: c.UnsafeDependencies,
		UnsafeCallTargets:  c.UnsafeCallTargets,
		EnvFacility:        c.MarkEnvAsUnsafe,
		FFIFacility:        c.MarkFFIAsUnsafe,
		QuickFacility:      c.MarkQuickAsUnsafe,
	}
}
