// Package field evaluates analytic cell fields over spherical
// coordinates. The driver seeds owned-cell tags from these functions;
// ghost copies keep the tag default until an exchange delivers them.
package field

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
)

// Func evaluates a field at a longitude/latitude point on the unit
// sphere. Longitude is in [0, 2pi), latitude in [-pi/2, pi/2].
type Func func(lon, lat float64) float64

// Kind selects a built-in analytic form.
type Kind int

const (
	// Pulse is a steep sin^16 band modulated along longitude.
	Pulse Kind = iota + 1
	// Zonal varies smoothly with longitude and latitude.
	Zonal
)

// Builtin returns the analytic field of the given kind scaled by mult.
// Kinds without a dedicated form fall back to Zonal.
func Builtin(kind Kind, mult float64) Func {
	switch kind {
	case Pulse:
		return func(lon, lat float64) float64 {
			return (2.0 + math.Pow(math.Sin(2*lat), 16)*math.Cos(16*lon)) * mult
		}
	default:
		return func(lon, lat float64) float64 {
			c := math.Cos(lon)
			return (2.0 + c*c*math.Cos(2*lat)) * mult
		}
	}
}

// VectorComponents returns the evaluators for a width-w vector field.
// Component j is the zonal form scaled by ((j+1) mod w)+1, so the
// multipliers cycle through 2..w,1 across the components.
func VectorComponents(w int) []Func {
	out := make([]Func, w)
	for j := range out {
		out[j] = Builtin(Zonal, float64((j+1)%w)+1)
	}
	return out
}

// Compile builds a field from an expression over lon and lat, for
// example "2 + cos(lon)*sin(lat)". The helpers sin, cos, pow and the
// constant pi are in scope. Unknown names and syntax problems fail
// here; evaluation faults surface as NaN values.
func Compile(src string) (Func, error) {
	program, err := expr.Compile(src, expr.Env(exprEnv(0, 0)), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("field: compile %q: %w", src, err)
	}
	return func(lon, lat float64) float64 {
		out, err := expr.Run(program, exprEnv(lon, lat))
		if err != nil {
			return math.NaN()
		}
		v, ok := out.(float64)
		if !ok {
			return math.NaN()
		}
		return v
	}, nil
}

func exprEnv(lon, lat float64) map[string]any {
	return map[string]any{
		"lon": lon,
		"lat": lat,
		"pi":  math.Pi,
		"sin": math.Sin,
		"cos": math.Cos,
		"pow": math.Pow,
	}
}
