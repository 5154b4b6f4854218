// Package indicator builds derived series over bar fields.
//
// Every indicator is a series.Derived (one upstream) or a series.Pair (two
// upstreams) driven by one of four transform archetypes: windowed aggregate,
// single-pole recursive filter, cascaded multi-stage filter and pairwise
// combinator. Constructors take the upstream Source and return a Node that
// can itself feed further indicators.
package indicator

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// Node is a pipeline vertex: a readable, subscribable series that owns its
// upstream subscriptions.
type Node interface {
	series.Source
	Close()
}

// Option tweaks indicator construction.
type Option func(*options)

type options struct {
	nanOnCold bool
}

// NaNOnCold makes the indicator emit NaN until it is past warmup instead of
// the best-effort partial value.
func NaNOnCold() Option {
	return func(o *options) { o.nanOnCold = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func checkPeriod(component string, period int) error {
	if period < 1 {
		return series.Configf(component, "period", "must be >= 1, got %d", period)
	}
	return nil
}
