package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// MACD groups the three MACD outputs. Each one is an internal cascade over
// the same input: fast and slow EMAs, and a signal EMA over their difference.
type MACD struct {
	Line   *series.Derived[struct{}]
	Signal *series.Derived[struct{}]
	Hist   *series.Derived[struct{}]
}

type macdOutput int

const (
	macdLine macdOutput = iota
	macdSignal
	macdHist
)

// macdTransform advances the fast, slow and signal EMAs in one step. The
// signal stage always sees the best-effort line, so masking cold outputs with
// NaN never reaches it.
type macdTransform struct {
	fast, slow, signal *SinglePole
	cells              [3]series.Cell[Pole]
	out                macdOutput
}

func (m *macdTransform) Step(v float64, revise bool, s struct{}) (float64, struct{}) {
	step := func(i int, f *SinglePole, x float64) float64 {
		return m.cells[i].Step(revise, func(c Pole) (float64, Pole) {
			next := f.advance(c, x)
			return next.Value, next
		})
	}
	line := step(0, m.fast, v) - step(1, m.slow, v)
	if m.out == macdLine {
		return line, s
	}
	sig := step(2, m.signal, line)
	if m.out == macdSignal {
		return sig, s
	}
	return line - sig, s
}

func newMACDTransform(fast, slow, signal int, out macdOutput) (*macdTransform, error) {
	f, err := NewSinglePole(EMAFactor(fast), fast)
	if err != nil {
		return nil, err
	}
	sl, err := NewSinglePole(EMAFactor(slow), slow)
	if err != nil {
		return nil, err
	}
	sg, err := NewSinglePole(EMAFactor(signal), signal)
	if err != nil {
		return nil, err
	}
	return &macdTransform{fast: f, slow: sl, signal: sg, out: out}, nil
}

// NewMACD builds the MACD family named name, name.signal and name.hist. The
// line is hot after slow inputs, signal and histogram after slow+signal-1.
func NewMACD(name string, src series.Source, fast, slow, signal int, opts ...Option) (*MACD, error) {
	if err := checkPeriod("MACD fast", fast); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD slow", slow); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD signal", signal); err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, series.Configf("MACD", "fast", "must be < slow (%d >= %d)", fast, slow)
	}
	o := buildOptions(opts)

	build := func(suffix string, out macdOutput, warmup int) (*series.Derived[struct{}], error) {
		tr, err := newMACDTransform(fast, slow, signal, out)
		if err != nil {
			return nil, err
		}
		return series.NewDerived[struct{}](name+suffix, src, tr, series.Warmup{Period: warmup, NaNOnCold: o.nanOnCold})
	}

	m := &MACD{}
	var err error
	if m.Line, err = build("", macdLine, slow); err != nil {
		return nil, err
	}
	if m.Signal, err = build(".signal", macdSignal, slow+signal-1); err != nil {
		m.Close()
		return nil, err
	}
	if m.Hist, err = build(".hist", macdHist, slow+signal-1); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Close detaches every output built so far.
func (m *MACD) Close() {
	for _, d := range []*series.Derived[struct{}]{m.Hist, m.Signal, m.Line} {
		if d != nil {
			d.Close()
		}
	}
}
