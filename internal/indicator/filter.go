package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// Pole is the state of a single-pole recursive filter. While N < seed the
// filter is seeding and Value is the plain average of the inputs so far.
type Pole struct {
	Value float64
	Sum   float64
	N     int
}

// SinglePole is V' = V + k*(x - V), seeded with the average of the first
// seed inputs. It needs no side structure: a revision simply recomputes from
// the committed Pole.
type SinglePole struct {
	k    float64
	seed int
}

// NewSinglePole returns a filter with smoothing factor k in (0, 1] and a seed
// length >= 1.
func NewSinglePole(k float64, seed int) (*SinglePole, error) {
	if !(k > 0 && k <= 1) {
		return nil, series.Configf("filter", "k", "must be in (0, 1], got %g", k)
	}
	if seed < 1 {
		return nil, series.Configf("filter", "seed", "must be >= 1, got %d", seed)
	}
	return &SinglePole{k: k, seed: seed}, nil
}

// K returns the smoothing factor.
func (f *SinglePole) K() float64 { return f.k }

func (f *SinglePole) Step(v float64, _ bool, c Pole) (float64, Pole) {
	next := f.advance(c, v)
	return next.Value, next
}

func (f *SinglePole) advance(c Pole, v float64) Pole {
	if c.N < f.seed {
		sum := c.Sum + v
		n := c.N + 1
		return Pole{Value: sum / float64(n), Sum: sum, N: n}
	}
	return Pole{Value: c.Value + f.k*(v-c.Value), Sum: c.Sum, N: c.N + 1}
}

// EMAFactor is the standard exponential smoothing factor 2/(p+1).
func EMAFactor(period int) float64 { return 2 / float64(period+1) }

// WilderFactor is the smoothing factor 1/p used by RMA/SMMA and RSI.
func WilderFactor(period int) float64 { return 1 / float64(period) }

func newPole(name string, src series.Source, k float64, seed, warmup int, opts []Option) (*series.Derived[Pole], error) {
	tr, err := NewSinglePole(k, seed)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return series.NewDerived[Pole](name, src, tr, series.Warmup{Period: warmup, NaNOnCold: o.nanOnCold})
}

// NewEMA is the exponential moving average, seeded with an SMA of the first
// period inputs.
func NewEMA(name string, src series.Source, period int, opts ...Option) (*series.Derived[Pole], error) {
	if err := checkPeriod("EMA", period); err != nil {
		return nil, err
	}
	return newPole(name, src, EMAFactor(period), period, period, opts)
}

// NewRMA is Wilder's running moving average (SMMA).
func NewRMA(name string, src series.Source, period int, opts ...Option) (*series.Derived[Pole], error) {
	if err := checkPeriod("RMA", period); err != nil {
		return nil, err
	}
	return newPole(name, src, WilderFactor(period), period, period, opts)
}

// NewSmooth is a single-pole filter with an explicit factor and no seeding;
// the first input initializes it. period only controls the warmup flag.
func NewSmooth(name string, src series.Source, k float64, period int, opts ...Option) (*series.Derived[Pole], error) {
	if err := checkPeriod("SMOOTH", period); err != nil {
		return nil, err
	}
	return newPole(name, src, k, 1, period, opts)
}
