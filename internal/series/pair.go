package series

import (
	"log"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Op combines the latest left and right values.
type Op func(l, r float64) float64

// Pair merges two upstream sources with a stateless Op. Alignment is lenient:
// each notification from either side updates that side's last known value
// and, once both sides are known, recomputes from the latest pair. The output
// timestamp is the later of the two inputs.
//
// Two upstreams that share an ancestor notify separately, one per branch, so
// between the two notifications the output reflects a stale partner value.
// This is observable and intended; there is no joint update.
type Pair struct {
	out         *Series
	left, right Source
	op          Op

	lastLeft, lastRight   model.Sample
	knownLeft, knownRight bool

	subLeft, subRight *Subscription
}

// NewPair builds a combinator over left and right. Existing upstream samples
// are replayed merged by timestamp, left before right on equal timestamps.
func NewPair(name string, left, right Source, op Op) (*Pair, error) {
	if left == nil {
		return nil, Configf(name, "left source", "must not be nil")
	}
	if right == nil {
		return nil, Configf(name, "right source", "must not be nil")
	}
	if op == nil {
		return nil, Configf(name, "op", "must not be nil")
	}

	p := &Pair{out: New(name), left: left, right: right, op: op}

	i, j := 0, 0
	nl, nr := left.Len(), right.Len()
	for i < nl || j < nr {
		if j >= nr || (i < nl && !right.At(j).TS.Before(left.At(i).TS)) {
			if err := p.update(true, Event{Kind: KindAppend, Sample: left.At(i), Index: i}); err != nil {
				return nil, err
			}
			i++
			continue
		}
		if err := p.update(false, Event{Kind: KindAppend, Sample: right.At(j), Index: j}); err != nil {
			return nil, err
		}
		j++
	}

	p.subLeft = left.Subscribe(func(ev Event) { p.onEvent(true, ev) })
	p.subRight = right.Subscribe(func(ev Event) { p.onEvent(false, ev) })
	return p, nil
}

func (p *Pair) onEvent(left bool, ev Event) {
	if err := p.update(left, ev); err != nil {
		log.Printf("[series] %s: dropped %s: %v", p.out.Name(), ev.Kind, err)
	}
}

func (p *Pair) update(left bool, ev Event) error {
	if left {
		p.lastLeft, p.knownLeft = ev.Sample, true
	} else {
		p.lastRight, p.knownRight = ev.Sample, true
	}
	if !p.knownLeft || !p.knownRight {
		return nil
	}

	ts := p.lastLeft.TS
	if p.lastRight.TS.After(ts) {
		ts = p.lastRight.TS
	}
	revise := ev.Kind == KindRevise && p.out.Len() > 0

	// A revision can move one side back in time. The output never does: it
	// keeps the earliest timestamp its own ordering allows.
	floor := p.out.Len() - 1
	if revise {
		floor--
	}
	if floor >= 0 {
		if lo := p.out.At(floor).TS; ts.Before(lo) {
			ts = lo
		}
	}
	res := model.Sample{TS: ts, Value: p.op(p.lastLeft.Value, p.lastRight.Value)}

	if revise {
		return p.out.Revise(res)
	}
	return p.out.Append(res)
}

// Close detaches from both upstreams. Safe to call more than once.
func (p *Pair) Close() {
	p.subLeft.Unsubscribe()
	p.subRight.Unsubscribe()
}

func (p *Pair) Name() string                      { return p.out.Name() }
func (p *Pair) Len() int                          { return p.out.Len() }
func (p *Pair) At(i int) model.Sample             { return p.out.At(i) }
func (p *Pair) Last() (model.Sample, bool)        { return p.out.Last() }
func (p *Pair) Values() []float64                 { return p.out.Values() }
func (p *Pair) Subscribe(h Handler) *Subscription { return p.out.Subscribe(h) }

// Hot is true once an output exists and both upstreams are hot.
func (p *Pair) Hot() bool {
	return p.out.Len() > 0 && p.left.Hot() && p.right.Hot()
}

// Known returns the last value seen from each side.
func (p *Pair) Known() (left, right model.Sample, ok bool) {
	return p.lastLeft, p.lastRight, p.knownLeft && p.knownRight
}
