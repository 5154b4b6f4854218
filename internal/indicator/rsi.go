package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// RSIState is Wilder's running state: the previous input and the smoothed
// average gain and loss over D deltas.
type RSIState struct {
	Prev    float64
	AvgGain float64
	AvgLoss float64
	N       int // inputs seen
}

// RSI is the Relative Strength Index with Wilder's smoothing. The first
// period deltas are averaged plainly; after that each average is
// (avg*(p-1) + x) / p.
type RSI struct {
	period int
}

func (r RSI) Step(v float64, _ bool, c RSIState) (float64, RSIState) {
	next := RSIState{Prev: v, N: c.N + 1}
	if c.N == 0 {
		return 50, next
	}

	delta := v - c.Prev
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	m := float64(min(c.N, r.period))
	next.AvgGain = (c.AvgGain*(m-1) + gain) / m
	next.AvgLoss = (c.AvgLoss*(m-1) + loss) / m

	if next.AvgLoss == 0 {
		if next.AvgGain == 0 {
			return 50, next
		}
		return 100, next
	}
	rs := next.AvgGain / next.AvgLoss
	return 100 - 100/(1+rs), next
}

// NewRSI binds an RSI to src. It is hot after period+1 inputs.
func NewRSI(name string, src series.Source, period int, opts ...Option) (*series.Derived[RSIState], error) {
	if err := checkPeriod("RSI", period); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return series.NewDerived[RSIState](name, src, RSI{period: period}, series.Warmup{Period: period + 1, NaNOnCold: o.nanOnCold})
}
