package formula

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// Registry holds the externally authored curve configurations, looked
// up by key. A missing key degrades to neutral behavior (multiplier 1,
// probability 1, reduction 0) rather than failing.
type Registry struct {
	curves map[string]domain.FormulaConfig
}

// NewRegistry builds a registry from explicit configs, keyed by cfg.Key.
func NewRegistry(configs ...domain.FormulaConfig) *Registry {
	r := &Registry{curves: make(map[string]domain.FormulaConfig, len(configs))}
	for _, cfg := range configs {
		r.curves[cfg.Key] = cfg
	}
	return r
}

type registryFile struct {
	Formulas []domain.FormulaConfig `yaml:"formulas"`
}

// LoadRegistry reads curve configurations from a YAML file. The file is
// read-only tuning data; an unreadable file is an error, but individual
// missing curves are not.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read formula config: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse formula config: %w", err)
	}

	return NewRegistry(file.Formulas...), nil
}

// Lookup returns the config for a key and whether it exists.
func (r *Registry) Lookup(key string) (domain.FormulaConfig, bool) {
	cfg, ok := r.curves[key]
	return cfg, ok
}

// Multiplier evaluates a duration-scaling curve. Neutral is 1.
func (r *Registry) Multiplier(key string, stat float64) float64 {
	cfg, ok := r.curves[key]
	if !ok {
		return 1
	}
	return Curve(stat, cfg)
}

// Probability evaluates a chance curve, clamped to [0,1]. Neutral is 1.
func (r *Registry) Probability(key string, stat float64) float64 {
	cfg, ok := r.curves[key]
	if !ok {
		return 1
	}
	p := Curve(stat, cfg)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Reduction evaluates a discount curve, clamped to [0,1]. Neutral is 0.
func (r *Registry) Reduction(key string, stat float64) float64 {
	cfg, ok := r.curves[key]
	if !ok {
		return 0
	}
	red := Curve(stat, cfg)
	if red < 0 {
		return 0
	}
	if red > 1 {
		return 1
	}
	return red
}
