package field

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinPulse(t *testing.T) {
	f := Builtin(Pulse, 1)
	// The pulse vanishes at the equator, peaks where sin(2 lat) = 1.
	got := []float64{f(0.7, 0), f(0, math.Pi/4), f(math.Pi/16, math.Pi/4)}
	want := []float64{2, 3, 1}
	assert.InDeltaSlicef(t, want, got, 1e-9, "pulse samples")
}

func TestBuiltinZonal(t *testing.T) {
	f := Builtin(Zonal, 1)
	got := []float64{f(0, 0), f(math.Pi/2, 0), f(0, math.Pi/2)}
	want := []float64{3, 2, 1}
	assert.InDeltaSlicef(t, want, got, 1e-9, "zonal samples")

	scaled := Builtin(Zonal, 2.5)
	assert.InDelta(t, 7.5, scaled(0, 0), 1e-12)
}

func TestVectorComponentCycle(t *testing.T) {
	comps := VectorComponents(3)
	got := make([]float64, len(comps))
	for j, f := range comps {
		got[j] = f(0, 0)
	}
	// Multipliers run 2, 3, then wrap to 1.
	assert.InDeltaSlicef(t, []float64{6, 9, 3}, got, 1e-12, "width 3")

	single := VectorComponents(1)
	assert.InDelta(t, 3, single[0](0, 0), 1e-12)
}

func TestCompileMatchesZonal(t *testing.T) {
	f, err := Compile("2 + cos(lon)*cos(lon)*cos(2*lat)")
	if err != nil {
		t.Fatal(err)
	}
	ref := Builtin(Zonal, 1)
	pts := [][2]float64{{0, 0}, {1.1, 0.3}, {math.Pi, -0.7}, {5.9, 1.2}}
	got := make([]float64, len(pts))
	want := make([]float64, len(pts))
	for i, p := range pts {
		got[i] = f(p[0], p[1])
		want[i] = ref(p[0], p[1])
	}
	assert.InDeltaSlicef(t, want, got, 1e-12, "compiled vs builtin")
}

func TestCompileConstants(t *testing.T) {
	f, err := Compile("pow(sin(pi/2), 2)")
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 1, f(0.4, -0.2), 1e-12)
}

func TestCompileRejectsBadSource(t *testing.T) {
	if _, err := Compile("lon +"); err == nil {
		t.Fatal("dangling operator should fail")
	}
	if _, err := Compile("bogus + 1"); err == nil {
		t.Fatal("unknown name should fail")
	}
}
