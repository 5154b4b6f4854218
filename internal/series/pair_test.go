package series

import (
	"errors"
	"math"
	"testing"
)

func sub(l, r float64) float64 { return l - r }

func TestPair_Configuration(t *testing.T) {
	l, r := New("l"), New("r")
	var cfg *ConfigurationError
	if _, err := NewPair("p", nil, r, sub); !errors.As(err, &cfg) {
		t.Errorf("nil left: %v", err)
	}
	if _, err := NewPair("p", l, nil, sub); !errors.As(err, &cfg) {
		t.Errorf("nil right: %v", err)
	}
	if _, err := NewPair("p", l, r, nil); !errors.As(err, &cfg) {
		t.Errorf("nil op: %v", err)
	}
}

func TestPair_LenientAlignment(t *testing.T) {
	// Right is known before left's two appends.
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)

	_ = r.Append(smp(0, 10))
	_ = l.Append(smp(0, 1))
	_ = l.Append(smp(1, 2))

	assertValues(t, "diff", p.Values(), []float64{-9, -8})
	if p.Len() != 2 {
		t.Errorf("len = %d, want 2", p.Len())
	}
	if last, _ := p.Last(); !last.TS.Equal(at(1)) {
		t.Errorf("ts = %v, want max of inputs %v", last.TS, at(1))
	}
}

func TestPair_LenientAlignmentInterleaved(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)

	_ = l.Append(smp(0, 1)) // right unknown, no output
	if p.Len() != 0 {
		t.Fatalf("emitted before both sides known")
	}
	_ = r.Append(smp(0, 10))
	_ = l.Append(smp(1, 2))

	assertValues(t, "diff", p.Values(), []float64{-9, -8})
}

func TestPair_OutputTSIsMax(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)
	_ = l.Append(smp(0, 1))
	_ = r.Append(smp(5, 2))
	_ = l.Append(smp(3, 4)) // right still newer

	for i := 0; i < p.Len(); i++ {
		if !p.At(i).TS.Equal(at(5)) {
			t.Errorf("ts[%d] = %v, want %v", i, p.At(i).TS, at(5))
		}
	}
}

func TestPair_Revise(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)
	_ = r.Append(smp(0, 10))
	_ = l.Append(smp(0, 1))
	_ = l.Append(smp(1, 2))

	_ = l.Revise(smp(1, 12))
	assertValues(t, "after left revise", p.Values(), []float64{-9, 2})

	_ = r.Revise(smp(0, 2))
	assertValues(t, "after right revise", p.Values(), []float64{-9, 10})
}

func TestPair_ReviseBackInTimeKeepsOrder(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)
	_ = r.Append(smp(0, 10))
	_ = l.Append(smp(0, 1))
	_ = r.Append(smp(5, 20)) // output at max = 5
	_ = l.Append(smp(1, 2))  // still 5

	// Right's tail moves back to 2; max(1, 2) would precede output[1].
	if err := r.Revise(smp(2, 30)); err != nil {
		t.Fatal(err)
	}
	assertValues(t, "diff", p.Values(), []float64{-9, -19, -28})
	if last, _ := p.Last(); !last.TS.Equal(at(5)) {
		t.Errorf("ts = %v, want clamped to %v", last.TS, at(5))
	}
}

func TestPair_SharedAncestorRace(t *testing.T) {
	// Both branches hang off one root. Each root append reaches the pair
	// twice, and the first delivery pairs a fresh left with a stale right.
	root := New("root")
	double, _ := NewDerived("x2", root, TransformFunc[struct{}](func(v float64, _ bool, s struct{}) (float64, struct{}) {
		return 2 * v, s
	}), Warmup{Period: 1})
	plusOne, _ := NewDerived("x+1", root, TransformFunc[struct{}](func(v float64, _ bool, s struct{}) (float64, struct{}) {
		return v + 1, s
	}), Warmup{Period: 1})

	p, _ := NewPair("diff", double, plusOne, sub)

	var seen []float64
	p.Subscribe(func(ev Event) { seen = append(seen, ev.Sample.Value) })

	_ = root.Append(smp(0, 1)) // left 2, right unknown; then right 2 -> 0
	_ = root.Append(smp(1, 5)) // left 10 vs stale 2 -> 8; then right 6 -> 4

	assertValues(t, "transient", seen, []float64{0, 8, 4})
	assertValues(t, "series", p.Values(), []float64{0, 8, 4})
	if p.Len() == root.Len() {
		t.Error("race produced one output per root sample; expected one per notification")
	}
}

func TestPair_BulkReplayMergesByTime(t *testing.T) {
	// Live: events in timestamp order with left first on ties.
	live := func() *Pair {
		l, r := New("l"), New("r")
		p, _ := NewPair("diff", l, r, sub)
		_ = l.Append(smp(0, 1))
		_ = r.Append(smp(0, 10))
		_ = l.Append(smp(1, 2))
		_ = r.Append(smp(2, 20))
		_ = l.Append(smp(3, 3))
		return p
	}()

	l, r := New("l"), New("r")
	_ = l.Append(smp(0, 1))
	_ = l.Append(smp(1, 2))
	_ = l.Append(smp(3, 3))
	_ = r.Append(smp(0, 10))
	_ = r.Append(smp(2, 20))
	bulk, err := NewPair("diff", l, r, sub)
	if err != nil {
		t.Fatal(err)
	}

	assertValues(t, "bulk", bulk.Values(), live.Values())
	assertValues(t, "expected", bulk.Values(), []float64{-9, -8, -18, -17})
}

func TestPair_Hot(t *testing.T) {
	l := New("l")
	r := New("r")
	warm, _ := NewDerived("warm", r, runningSum(), Warmup{Period: 2})
	p, _ := NewPair("diff", l, warm, sub)

	_ = l.Append(smp(0, 1))
	_ = r.Append(smp(0, 1))
	if p.Hot() {
		t.Error("hot while right is cold")
	}
	_ = r.Append(smp(1, 1))
	if !p.Hot() {
		t.Error("expected hot once both sides are hot")
	}
}

func TestPair_Close(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)
	_ = l.Append(smp(0, 1))
	_ = r.Append(smp(0, 1))
	p.Close()
	p.Close()
	_ = l.Append(smp(1, 5))
	if p.Len() != 1 {
		t.Errorf("len = %d after close, want 1", p.Len())
	}
	if l.Subscribers() != 0 || r.Subscribers() != 0 {
		t.Error("close left subscriptions behind")
	}
}

func TestPair_NaNPropagates(t *testing.T) {
	l, r := New("l"), New("r")
	p, _ := NewPair("diff", l, r, sub)
	_ = l.Append(smp(0, math.NaN()))
	_ = r.Append(smp(0, 1))
	if last, _ := p.Last(); !math.IsNaN(last.Value) {
		t.Errorf("expected NaN, got %v", last.Value)
	}
}
