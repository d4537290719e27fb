package domain

// Formula curve keys. Each key parameterizes an independent instance of
// the one curve primitive.
const (
	CurveCycleTimeReduction    = "cycle_time_reduction"
	CurveHitRate               = "hit_rate"
	CurveHarvestTimeIncrease   = "harvestable_time_increase"
	CurveCooldownTimeReduction = "cooldown_time_reduction"
	CurveVitalisDrainReduction = "vitalis_drain_reduction"
)

// FormulaConfig parameterizes one stat curve: a stat value in
// [DomainMin, DomainMax] maps to a result in [ValueMin, ValueMax] with
// Exponent shaping the interpolation.
type FormulaConfig struct {
	Key       string  `json:"key" yaml:"key"`
	DomainMin float64 `json:"domain_min" yaml:"domain_min"`
	ValueMin  float64 `json:"value_min" yaml:"value_min"`
	DomainMax float64 `json:"domain_max" yaml:"domain_max"`
	ValueMax  float64 `json:"value_max" yaml:"value_max"`
	Exponent  float64 `json:"exponent" yaml:"exponent"`
}
