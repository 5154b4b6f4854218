package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// Combine turns the per-stage outputs of a cascade into one value.
type Combine func(stages []float64) float64

// Cascade runs N single-pole stages where stage i filters stage i-1's output.
// Each stage keeps its own committed/candidate pair and all stages advance in
// stage order inside one Step, so a revision of the input rolls every stage
// back together.
type Cascade struct {
	filter  *SinglePole
	cells   []series.Cell[Pole]
	outs    []float64
	combine Combine
}

// NewCascade builds n stages sharing one factor and seed.
func NewCascade(n int, k float64, seed int, combine Combine) (*Cascade, error) {
	if n < 1 {
		return nil, series.Configf("cascade", "stages", "must be >= 1, got %d", n)
	}
	f, err := NewSinglePole(k, seed)
	if err != nil {
		return nil, err
	}
	if combine == nil {
		combine = LastStage
	}
	return &Cascade{
		filter:  f,
		cells:   make([]series.Cell[Pole], n),
		outs:    make([]float64, n),
		combine: combine,
	}, nil
}

func (c *Cascade) Step(v float64, revise bool, s struct{}) (float64, struct{}) {
	x := v
	for i := range c.cells {
		x = c.cells[i].Step(revise, func(committed Pole) (float64, Pole) {
			next := c.filter.advance(committed, x)
			return next.Value, next
		})
		c.outs[i] = x
	}
	return c.combine(c.outs), s
}

// Stages returns the candidate value of every stage.
func (c *Cascade) Stages() []float64 {
	out := make([]float64, len(c.outs))
	copy(out, c.outs)
	return out
}

// LastStage returns the deepest stage.
func LastStage(s []float64) float64 { return s[len(s)-1] }

// DEMACombine is 2*E1 - E2.
func DEMACombine(s []float64) float64 { return 2*s[0] - s[1] }

// TEMACombine is 3*E1 - 3*E2 + E3.
func TEMACombine(s []float64) float64 { return 3*s[0] - 3*s[1] + s[2] }

// CascadeWarmup is the number of inputs before the deepest of n stages with
// the given period is past warmup.
func CascadeWarmup(n, period int) int { return n*(period-1) + 1 }

// NewCascaded binds an n-stage EMA cascade to src.
func NewCascaded(name string, src series.Source, n, period int, combine Combine, opts ...Option) (*series.Derived[struct{}], error) {
	if err := checkPeriod("cascade", period); err != nil {
		return nil, err
	}
	tr, err := NewCascade(n, EMAFactor(period), period, combine)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return series.NewDerived[struct{}](name, src, tr, series.Warmup{Period: CascadeWarmup(n, period), NaNOnCold: o.nanOnCold})
}

// NewDEMA is the double exponential moving average.
func NewDEMA(name string, src series.Source, period int, opts ...Option) (*series.Derived[struct{}], error) {
	return NewCascaded(name, src, 2, period, DEMACombine, opts...)
}

// NewTEMA is the triple exponential moving average.
func NewTEMA(name string, src series.Source, period int, opts ...Option) (*series.Derived[struct{}], error) {
	return NewCascaded(name, src, 3, period, TEMACombine, opts...)
}
