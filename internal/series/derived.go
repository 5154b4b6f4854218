package series

import (
	"log"
	"math"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Transform computes one output from one input given the committed state.
// revise is true when the input replaces the previous input rather than
// following it; transforms that keep side structures (a rolling window, an
// internal cascade) use it to choose between push and replace.
type Transform[S any] interface {
	Step(v float64, revise bool, committed S) (out float64, next S)
}

// TransformFunc adapts a function to Transform.
type TransformFunc[S any] func(v float64, revise bool, committed S) (float64, S)

func (f TransformFunc[S]) Step(v float64, revise bool, committed S) (float64, S) {
	return f(v, revise, committed)
}

// Warmup classifies derived samples as cold or hot. The sample at 1-based
// position n is cold while n < Period. Cold samples are NaN when NaNOnCold is
// set, otherwise the transform's best-effort partial value.
type Warmup struct {
	Period    int
	NaNOnCold bool
}

// Hot reports whether the n-th sample (1-based) is past warmup.
func (w Warmup) Hot(n int) bool { return n >= w.Period }

// Derived is a series produced by applying a Transform to one upstream
// Source. It owns its subscription to the upstream and its committed and
// candidate transform state.
type Derived[S any] struct {
	out    *Series
	src    Source
	tr     Transform[S]
	cell   Cell[S]
	warmup Warmup

	warmupCount int
	sub         *Subscription
}

// NewDerived builds a derived series over src. If src already holds samples
// they are replayed as appends, in order, before live notifications are
// accepted; the result is identical to having been fed live.
func NewDerived[S any](name string, src Source, tr Transform[S], w Warmup) (*Derived[S], error) {
	if src == nil {
		return nil, Configf(name, "source", "must not be nil")
	}
	if tr == nil {
		return nil, Configf(name, "transform", "must not be nil")
	}
	if w.Period < 1 {
		return nil, Configf(name, "warmup period", "must be >= 1, got %d", w.Period)
	}

	d := &Derived[S]{
		out:    New(name),
		src:    src,
		tr:     tr,
		warmup: w,
	}
	for i, n := 0, src.Len(); i < n; i++ {
		if err := d.Add(src.At(i), false); err != nil {
			return nil, err
		}
	}
	d.sub = src.Subscribe(d.onEvent)
	return d, nil
}

func (d *Derived[S]) onEvent(ev Event) {
	if err := d.Add(ev.Sample, ev.Kind == KindRevise); err != nil {
		log.Printf("[series] %s: dropped %s from %s: %v", d.out.Name(), ev.Kind, d.src.Name(), err)
	}
}

// Add feeds one input sample. A new sample promotes the candidate state to
// committed and appends the output; a revision recomputes from the committed
// state and revises the output tail. On error nothing changes.
func (d *Derived[S]) Add(smp model.Sample, revise bool) error {
	n := d.warmupCount
	if revise {
		if err := d.out.checkRevise(smp); err != nil {
			return err
		}
	} else {
		if err := d.out.checkAppend(smp); err != nil {
			return err
		}
		n++
	}

	v := d.cell.Step(revise, func(committed S) (float64, S) {
		return d.tr.Step(smp.Value, revise, committed)
	})
	if d.warmup.NaNOnCold && !d.warmup.Hot(n) {
		v = math.NaN()
	}

	res := model.Sample{TS: smp.TS, Value: v}
	if revise {
		return d.out.Revise(res)
	}
	d.warmupCount = n
	return d.out.Append(res)
}

// Close detaches from the upstream. The series keeps its samples and its own
// subscribers. Safe to call more than once.
func (d *Derived[S]) Close() {
	d.sub.Unsubscribe()
}

func (d *Derived[S]) Name() string                      { return d.out.Name() }
func (d *Derived[S]) Len() int                          { return d.out.Len() }
func (d *Derived[S]) At(i int) model.Sample             { return d.out.At(i) }
func (d *Derived[S]) Last() (model.Sample, bool)        { return d.out.Last() }
func (d *Derived[S]) Values() []float64                 { return d.out.Values() }
func (d *Derived[S]) Subscribe(h Handler) *Subscription { return d.out.Subscribe(h) }
func (d *Derived[S]) Source() Source                    { return d.src }

// Hot reports whether the tail is past warmup. Once hot, always hot.
func (d *Derived[S]) Hot() bool { return d.warmup.Hot(d.warmupCount) }

// HotAt reports whether the i-th sample is past warmup.
func (d *Derived[S]) HotAt(i int) bool { return d.warmup.Hot(i + 1) }

// WarmupCount returns the number of appended inputs.
func (d *Derived[S]) WarmupCount() int { return d.warmupCount }

// Warmup returns the warmup policy.
func (d *Derived[S]) Warmup() Warmup { return d.warmup }

// State returns the committed and candidate transform state.
func (d *Derived[S]) State() (committed, candidate S) {
	return d.cell.Committed(), d.cell.Candidate()
}
