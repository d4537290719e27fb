// Package formula implements the stat curve primitive that scales every
// harvest timing, yield and drain value. One function powers five
// independently parameterized curves.
package formula

import (
	"math"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// Curve maps a stat value onto [cfg.ValueMin, cfg.ValueMax]. The value
// is clamped to [cfg.DomainMin, cfg.DomainMax] (out-of-domain inputs
// clamp, never extrapolate), normalized to [0,1] and raised to
// cfg.Exponent before scaling. Endpoints are exact:
// Curve(DomainMin)=ValueMin and Curve(DomainMax)=ValueMax.
func Curve(value float64, cfg domain.FormulaConfig) float64 {
	if cfg.DomainMax == cfg.DomainMin {
		return cfg.ValueMin
	}

	v := value
	if v < cfg.DomainMin {
		v = cfg.DomainMin
	}
	if v > cfg.DomainMax {
		v = cfg.DomainMax
	}

	t := (v - cfg.DomainMin) / (cfg.DomainMax - cfg.DomainMin)
	if cfg.Exponent != 1 {
		t = math.Pow(t, cfg.Exponent)
	}

	return cfg.ValueMin + t*(cfg.ValueMax-cfg.ValueMin)
}
