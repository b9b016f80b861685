package route

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// EngineConfig controls the behavior of the routing engine across all
// passes. DefaultEngineConfig returns values suitable for small to
// mid-size boards.
type EngineConfig struct {
	// Cost model.
	BaseCost   float64 `yaml:"base_cost"`   // cost of stepping into a free cell
	ViaPenalty float64 `yaml:"via_penalty"` // fixed cost of a layer change

	// Negotiated congestion.
	HistoryIncrement     float64 `yaml:"history_increment"` // per-iteration history bump on overused cells
	PresentBase          float64 `yaml:"present_base"`      // initial present-congestion multiplier
	PresentGrowth        float64 `yaml:"present_growth"`    // per-iteration multiplier growth
	NegotiatedIterations int     `yaml:"negotiated_iterations"`

	// Parallel scheduling.
	Workers int `yaml:"workers"` // 0 = min(NumCPU, 8)

	// Layer escalation.
	MinCompletion float64 `yaml:"min_completion"`
	MaxLayers     int     `yaml:"max_layers"`

	// Budgets. A zero timeout means unbounded; a zero memory budget means
	// no precondition check.
	Timeout           time.Duration `yaml:"-"`
	MemoryBudgetBytes int64         `yaml:"memory_budget_bytes"`
}

// maxWorkers caps the worker pool regardless of CPU count; routing is
// memory-bound and does not benefit from excessive parallelism.
const maxWorkers = 8

// DefaultEngineConfig returns the stock engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaseCost:             1.0,
		ViaPenalty:           5.0,
		HistoryIncrement:     1.0,
		PresentBase:          0.5,
		PresentGrowth:        2.0,
		NegotiatedIterations: 20,
		Workers:              0,
		MinCompletion:        0.95,
		MaxLayers:            6,
	}
}

// Validate checks the configuration, wrapping board.ErrInvalidConfiguration
// so callers can treat rule and engine misconfiguration uniformly.
func (c EngineConfig) Validate() error {
	if c.BaseCost <= 0 {
		return fmt.Errorf("%w: base cost must be positive", board.ErrInvalidConfiguration)
	}
	if c.ViaPenalty < 0 || c.HistoryIncrement < 0 || c.PresentBase < 0 || c.PresentGrowth < 0 {
		return fmt.Errorf("%w: cost weights must not be negative", board.ErrInvalidConfiguration)
	}
	if c.NegotiatedIterations < 1 {
		return fmt.Errorf("%w: negotiated iterations must be at least 1", board.ErrInvalidConfiguration)
	}
	if c.MinCompletion < 0 || c.MinCompletion > 1 {
		return fmt.Errorf("%w: min completion %.2f outside [0,1]", board.ErrInvalidConfiguration, c.MinCompletion)
	}
	if c.MaxLayers < 2 || c.MaxLayers%2 != 0 {
		return fmt.Errorf("%w: max layers must be an even number >= 2", board.ErrInvalidConfiguration)
	}
	return nil
}

// workerCount resolves the configured worker count.
func (c EngineConfig) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// presentFactor returns the present-congestion multiplier for an
// iteration. Reusing a contested cell becomes progressively more
// expensive the longer it stays congested.
func (c EngineConfig) presentFactor(iteration int) float64 {
	return c.PresentBase * (1 + c.PresentGrowth*float64(iteration))
}

// LoadEngineConfig reads an EngineConfig from a YAML file. Missing keys
// keep their defaults; the timeout is given as a duration string
// ("30s", "2m").
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}

	var raw struct {
		EngineConfig `yaml:",inline"`
		Timeout      string `yaml:"timeout"`
	}
	raw.EngineConfig = cfg
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	cfg = raw.EngineConfig

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("parse engine config timeout %q: %w", raw.Timeout, err)
		}
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
