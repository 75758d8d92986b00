package strategy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"reversion-core/internal/indicators"
)

// Defaults for the mean-reversion rule.
const (
	DefaultMinSamples       = 30
	DefaultEpsilon          = 0.001
	DefaultTrendWindow      = 5
	DefaultInitialThreshold = 2.2
)

// Params tunes the signal generator and the session's price window.
type Params struct {
	MinSamples       int     `yaml:"min_samples"`
	Epsilon          float64 `yaml:"epsilon"`
	TrendWindow      int     `yaml:"trend_window"`
	InitialThreshold float64 `yaml:"initial_threshold"`
	BufferCapacity   int     `yaml:"buffer_capacity"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategy Params `yaml:"strategy"`
}

// DefaultParams returns the stock parameters.
func DefaultParams() Params {
	return Params{}.withDefaults()
}

func (p Params) withDefaults() Params {
	if p.MinSamples <= 0 {
		p.MinSamples = DefaultMinSamples
	}
	if p.Epsilon <= 0 {
		p.Epsilon = DefaultEpsilon
	}
	if p.TrendWindow < 2 {
		p.TrendWindow = DefaultTrendWindow
	}
	if p.InitialThreshold <= 0 {
		p.InitialThreshold = DefaultInitialThreshold
	}
	if p.BufferCapacity <= 0 {
		p.BufferCapacity = indicators.DefaultCapacity
	}
	return p
}

// LoadConfig reads parameters from a YAML file. A missing file yields the
// defaults and found=false; a malformed one is an error.
func LoadConfig(path string) (p Params, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultParams(), false, nil
	}
	if err != nil {
		return Params{}, false, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Params{}, true, fmt.Errorf("parse %s: %w", path, err)
	}
	p = file.Strategy.withDefaults()
	if p.MinSamples > p.BufferCapacity {
		return Params{}, true, fmt.Errorf("min_samples %d exceeds buffer_capacity %d", p.MinSamples, p.BufferCapacity)
	}
	return p, true, nil
}
