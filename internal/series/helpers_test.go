package series

import (
	"math"
	"testing"
	"time"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

var t0 = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func smp(i int, v float64) model.Sample { return model.Sample{TS: at(i), Value: v} }

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(want) {
		if !math.IsNaN(got) {
			t.Errorf("%s: got %.6f, want NaN", label, got)
		}
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertValues(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d (%v)", label, len(got), len(want), got)
	}
	for i := range want {
		assertClose(t, label+"["+model.Itoa(i)+"]", got[i], want[i], 1e-9)
	}
}

// runningSum is the smallest stateful transform: out = committed + v.
func runningSum() Transform[float64] {
	return TransformFunc[float64](func(v float64, _ bool, c float64) (float64, float64) {
		return c + v, c + v
	})
}

// pole is a single-pole filter without seeding; the first input initializes.
type poleState struct {
	V    float64
	Init bool
}

func pole(k float64) Transform[poleState] {
	return TransformFunc[poleState](func(v float64, _ bool, c poleState) (float64, poleState) {
		if !c.Init {
			return v, poleState{V: v, Init: true}
		}
		n := c.V + k*(v-c.V)
		return n, poleState{V: n, Init: true}
	})
}
