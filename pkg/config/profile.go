package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineProfile holds the pipeline tunables an operator may override.
type PipelineProfile struct {
	Retry      RetryConfig      `yaml:"retry"`
	Purge      PurgeConfig      `yaml:"purge"`
	Generation GenerationConfig `yaml:"generation"`
	Eval       EvalConfig       `yaml:"eval"`
}

// RetryConfig bounds the activity retry policy.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// PurgeConfig sets the retention timers.
type PurgeConfig struct {
	CompletionDelayHours  int `yaml:"completion_delay_hours"`
	AbandonmentDelayHours int `yaml:"abandonment_delay_hours"`
}

// GenerationConfig controls the option fan-out.
type GenerationConfig struct {
	OptionCount int `yaml:"option_count"`
}

// EvalConfig tunes the regression detector.
type EvalConfig struct {
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

// DefaultProfile returns the production defaults.
func DefaultProfile() *PipelineProfile {
	return &PipelineProfile{
		Retry:      RetryConfig{MaxAttempts: 4, BaseDelayMS: 500, MaxDelayMS: 8000},
		Purge:      PurgeConfig{CompletionDelayHours: 24, AbandonmentDelayHours: 48},
		Generation: GenerationConfig{OptionCount: 3},
		Eval:       EvalConfig{Window: 5, Threshold: 10},
	}
}

// LoadProfile reads a profile YAML, applying defaults for absent fields.
// An empty path returns the defaults.
func LoadProfile(path string) (*PipelineProfile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse pipeline profile %s: %w", path, err)
	}
	if profile.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("pipeline profile %s: retry.max_attempts must be >= 1", path)
	}
	if profile.Generation.OptionCount < 1 {
		return nil, fmt.Errorf("pipeline profile %s: generation.option_count must be >= 1", path)
	}
	return profile, nil
}

// CompletionDelay converts the profile hours to a duration.
func (p *PipelineProfile) CompletionDelay() time.Duration {
	return time.Duration(p.Purge.CompletionDelayHours) * time.Hour
}

// AbandonmentDelay converts the profile hours to a duration.
func (p *PipelineProfile) AbandonmentDelay() time.Duration {
	return time.Duration(p.Purge.AbandonmentDelayHours) * time.Hour
}
