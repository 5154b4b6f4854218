package indicator

import (
	"math"
	"sort"

	"github.com/mihakralj/QuanTAlib-sub003/internal/ringbuf"
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// WindowKind selects the aggregate a rolling window computes.
type WindowKind int

const (
	WindowSum WindowKind = iota
	WindowMean
	WindowVar
	WindowStdDev
	WindowMin
	WindowMax
	WindowMedian
)

func (k WindowKind) String() string {
	switch k {
	case WindowSum:
		return "SUM"
	case WindowMean:
		return "SMA"
	case WindowVar:
		return "VAR"
	case WindowStdDev:
		return "STDDEV"
	case WindowMin:
		return "MIN"
	case WindowMax:
		return "MAX"
	case WindowMedian:
		return "MEDIAN"
	default:
		return "UNKNOWN"
	}
}

// WindowState carries the running accumulators. Sum and SumSq are kept for
// every kind so a revision only needs the committed totals and the value the
// last push evicted.
type WindowState struct {
	Sum   float64
	SumSq float64
}

// Window is the windowed-aggregate transform over the last period inputs.
// Append pushes into the buffer, evicting the oldest input once full; Revise
// overwrites the newest slot.
type Window struct {
	kind WindowKind
	buf  *ringbuf.Buffer
	tmp  []float64
}

// NewWindow creates the transform. Period must be >= 1.
func NewWindow(kind WindowKind, period int) (*Window, error) {
	if err := checkPeriod(kind.String(), period); err != nil {
		return nil, err
	}
	return &Window{kind: kind, buf: ringbuf.New(period)}, nil
}

// Period returns the window length.
func (w *Window) Period() int { return w.buf.Cap() }

func (w *Window) Step(v float64, revise bool, c WindowState) (float64, WindowState) {
	if revise {
		w.buf.ReplaceLast(v)
	} else {
		w.buf.Push(v)
	}

	next := WindowState{Sum: c.Sum + v, SumSq: c.SumSq + v*v}
	if old, ok := w.buf.Evicted(); ok {
		next.Sum -= old
		next.SumSq -= old * old
	}
	return w.aggregate(next), next
}

func (w *Window) aggregate(s WindowState) float64 {
	n := float64(w.buf.Len())
	switch w.kind {
	case WindowSum:
		return s.Sum
	case WindowMean:
		return s.Sum / n
	case WindowVar:
		return variance(s, n)
	case WindowStdDev:
		return math.Sqrt(variance(s, n))
	case WindowMin:
		return w.scan(math.Min)
	case WindowMax:
		return w.scan(math.Max)
	case WindowMedian:
		return w.median()
	}
	return math.NaN()
}

// variance is the population variance; rounding can push it slightly below
// zero for constant windows.
func variance(s WindowState, n float64) float64 {
	mean := s.Sum / n
	return max(s.SumSq/n-mean*mean, 0)
}

func (w *Window) scan(pick func(a, b float64) float64) float64 {
	out := w.buf.At(0)
	for i := 1; i < w.buf.Len(); i++ {
		out = pick(out, w.buf.At(i))
	}
	return out
}

func (w *Window) median() float64 {
	w.tmp = w.buf.AppendTo(w.tmp[:0])
	for _, v := range w.tmp {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	sort.Float64s(w.tmp)
	n := len(w.tmp)
	if n%2 == 1 {
		return w.tmp[n/2]
	}
	return (w.tmp[n/2-1] + w.tmp[n/2]) / 2
}

// NewWindowed binds a windowed aggregate to src. Warmup equals the period.
func NewWindowed(name string, src series.Source, kind WindowKind, period int, opts ...Option) (*series.Derived[WindowState], error) {
	tr, err := NewWindow(kind, period)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return series.NewDerived[WindowState](name, src, tr, series.Warmup{Period: period, NaNOnCold: o.nanOnCold})
}

// NewSMA is the simple moving average.
func NewSMA(name string, src series.Source, period int, opts ...Option) (*series.Derived[WindowState], error) {
	return NewWindowed(name, src, WindowMean, period, opts...)
}
