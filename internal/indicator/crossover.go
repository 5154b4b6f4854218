package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// CrossState remembers the previous difference between the two lines.
type CrossState struct {
	Prev  float64
	Known bool
}

// crossSignal is +1 when the difference turns positive (golden cross), -1
// when it turns negative (death cross), 0 otherwise.
func crossSignal(d float64, _ bool, c CrossState) (float64, CrossState) {
	next := CrossState{Prev: d, Known: true}
	if !c.Known {
		return 0, next
	}
	switch {
	case c.Prev <= 0 && d > 0:
		return 1, next
	case c.Prev >= 0 && d < 0:
		return -1, next
	}
	return 0, next
}

// Cross emits crossover signals between a fast and a slow line. Fast and slow
// usually share an ancestor, so the difference is settled to one sample per
// bar before the signal sees it.
type Cross struct {
	*series.Derived[CrossState]
	diff    *series.Pair
	settled *series.Settled
}

// NewCross builds fast-minus-slow and a signal series over it.
func NewCross(name string, fast, slow series.Source) (*Cross, error) {
	diff, err := NewPairwise(name+".diff", fast, slow, "SUB")
	if err != nil {
		return nil, err
	}
	settled, err := series.NewSettled(name+".settled", diff)
	if err != nil {
		diff.Close()
		return nil, err
	}
	d, err := series.NewDerived[CrossState](name, settled, series.TransformFunc[CrossState](crossSignal), series.Warmup{Period: 2})
	if err != nil {
		settled.Close()
		diff.Close()
		return nil, err
	}
	return &Cross{Derived: d, diff: diff, settled: settled}, nil
}

// Hot requires both lines to be hot.
func (c *Cross) Hot() bool { return c.Derived.Hot() && c.diff.Hot() }

// Diff exposes the fast-minus-slow series.
func (c *Cross) Diff() *series.Pair { return c.diff }

// Close detaches the signal and the difference.
func (c *Cross) Close() {
	c.Derived.Close()
	c.settled.Close()
	c.diff.Close()
}
