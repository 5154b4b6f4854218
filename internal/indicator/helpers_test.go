package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func ts(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func smp(i int, v float64) model.Sample { return model.Sample{TS: ts(i), Value: v} }

func makeBar(symbol string, i int, close float64) model.Bar {
	return model.Bar{
		Symbol: symbol, TF: 60, TS: ts(i),
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 100,
	}
}

func feed(t *testing.T, s *series.Series, values ...float64) {
	t.Helper()
	for _, v := range values {
		if err := s.Append(smp(s.Len(), v)); err != nil {
			t.Fatalf("append %v: %v", v, err)
		}
	}
}

func revise(t *testing.T, s *series.Series, v float64) {
	t.Helper()
	if err := s.Revise(smp(s.Len()-1, v)); err != nil {
		t.Fatalf("revise %v: %v", v, err)
	}
}

func values(n series.Source) []float64 {
	out := make([]float64, n.Len())
	for i := range out {
		out[i] = n.At(i).Value
	}
	return out
}

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

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("construct: %v", err)
		}
		return v
	}
}
