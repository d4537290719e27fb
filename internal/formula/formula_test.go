package formula

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thrumwood/thrumwood/internal/domain"
)

func TestCurveEndpointsExact(t *testing.T) {
	cfg := domain.FormulaConfig{
		Key:       domain.CurveHitRate,
		DomainMin: 0, ValueMin: 0.5,
		DomainMax: 100, ValueMax: 0.95,
		Exponent: 1.6,
	}

	assert.Equal(t, 0.5, Curve(0, cfg), "domain min must map exactly to value min")
	assert.Equal(t, 0.95, Curve(100, cfg), "domain max must map exactly to value max")
}

func TestCurveClampsOutOfDomain(t *testing.T) {
	cfg := domain.FormulaConfig{
		Key:       domain.CurveCycleTimeReduction,
		DomainMin: 10, ValueMin: 0,
		DomainMax: 90, ValueMax: 0.5,
		Exponent: 2,
	}

	assert.Equal(t, Curve(10, cfg), Curve(-500, cfg), "below-domain input clamps to domain min")
	assert.Equal(t, Curve(90, cfg), Curve(10000, cfg), "above-domain input clamps to domain max")
}

func TestCurveMonotonicAndBounded(t *testing.T) {
	cfg := domain.FormulaConfig{
		DomainMin: 0, ValueMin: 1,
		DomainMax: 100, ValueMax: 1.5,
		Exponent: 0.75,
	}

	prev := Curve(0, cfg)
	for v := 5.0; v <= 100; v += 5 {
		y := Curve(v, cfg)
		assert.GreaterOrEqual(t, y, prev, "curve must be non-decreasing at %v", v)
		assert.GreaterOrEqual(t, y, 1.0)
		assert.LessOrEqual(t, y, 1.5)
		prev = y
	}
}

func TestCurveDegenerateDomain(t *testing.T) {
	cfg := domain.FormulaConfig{DomainMin: 50, DomainMax: 50, ValueMin: 0.3, ValueMax: 0.9}
	assert.Equal(t, 0.3, Curve(50, cfg))
	assert.Equal(t, 0.3, Curve(0, cfg))
}

func TestRegistryNeutralDefaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, 1.0, r.Multiplier(domain.CurveHarvestTimeIncrease, 80), "missing multiplier curve is neutral 1")
	assert.Equal(t, 1.0, r.Probability(domain.CurveHitRate, 80), "missing probability curve is neutral 1")
	assert.Equal(t, 0.0, r.Reduction(domain.CurveVitalisDrainReduction, 80), "missing reduction curve is neutral 0")
}

func TestRegistryProbabilityClamped(t *testing.T) {
	r := NewRegistry(domain.FormulaConfig{
		Key:       domain.CurveHitRate,
		DomainMin: 0, ValueMin: -0.5,
		DomainMax: 100, ValueMax: 1.8,
		Exponent: 1,
	})

	assert.Equal(t, 0.0, r.Probability(domain.CurveHitRate, 0))
	assert.Equal(t, 1.0, r.Probability(domain.CurveHitRate, 100))
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/formulas.yaml"
	content := []byte(`formulas:
  - key: hit_rate
    domain_min: 0
    value_min: 0.5
    domain_max: 100
    value_max: 0.95
    exponent: 1.6
  - key: cooldown_time_reduction
    domain_min: 0
    value_min: 0
    domain_max: 100
    value_max: 0.5
    exponent: 1
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	r, err := LoadRegistry(path)
	assert.NoError(t, err)

	cfg, ok := r.Lookup(domain.CurveHitRate)
	assert.True(t, ok)
	assert.Equal(t, 0.95, cfg.ValueMax)

	assert.Equal(t, 0.25, r.Reduction(domain.CurveCooldownTimeReduction, 50))
	assert.Equal(t, 0.0, r.Reduction(domain.CurveVitalisDrainReduction, 50), "unlisted curve stays neutral")
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry("does/not/exist.yaml")
	assert.Error(t, err)
}
