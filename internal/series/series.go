// Package series implements the incremental time-series core: an ordered
// sample container whose last element may be revised, a synchronous
// subscription registry that lets derived series act as sources for further
// derived series, and the committed/candidate state protocol every transform
// shares so a revision costs O(1) instead of a replay.
//
// Everything here is single-threaded. Append and Revise recurse into
// subscriber handlers on the caller's stack; there are no goroutines, timers
// or locks.
package series

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Kind tells subscribers how the publishing series changed.
type Kind uint8

const (
	KindAppend Kind = iota + 1 // a new tail element was added
	KindRevise                 // the tail element was replaced
)

func (k Kind) String() string {
	switch k {
	case KindAppend:
		return "append"
	case KindRevise:
		return "revise"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a mutation has been applied.
type Event struct {
	Kind   Kind
	Sample model.Sample // the new tail
	Index  int          // index of the tail
}

// Handler receives notifications from a series.
type Handler func(ev Event)

// Source is the read side every node in a pipeline exposes.
type Source interface {
	Name() string
	Len() int
	At(i int) model.Sample
	Last() (model.Sample, bool)
	// Hot reports whether the newest sample is past warmup.
	Hot() bool
	Subscribe(h Handler) *Subscription
}

// Subscription is a registry entry owned by the subscriber. Unsubscribe
// removes it from the publisher.
type Subscription struct {
	owner   *Series
	handler Handler
	active  bool
}

// Unsubscribe stops further deliveries. Safe to call more than once and from
// inside a handler; notifications already delivered are unaffected.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	s.owner.remove(s)
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	return s != nil && s.active
}

// Series is an append-only ordered sequence of samples whose last element may
// be revised. Timestamps are non-decreasing.
type Series struct {
	name    string
	samples []model.Sample
	subs    []*Subscription
}

// New creates an empty series.
func New(name string) *Series {
	return &Series{name: name}
}

func (s *Series) Name() string { return s.name }
func (s *Series) Len() int     { return len(s.samples) }

// At returns the i-th sample. Panics if i is out of range.
func (s *Series) At(i int) model.Sample { return s.samples[i] }

// Last returns the tail sample.
func (s *Series) Last() (model.Sample, bool) {
	if len(s.samples) == 0 {
		return model.Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Hot is true once the series holds a sample; a root series has no warmup.
func (s *Series) Hot() bool { return len(s.samples) > 0 }

// Values returns a copy of all sample values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Value
	}
	return out
}

// Samples returns a copy of all samples.
func (s *Series) Samples() []model.Sample {
	out := make([]model.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Append adds smp as the new tail and notifies subscribers.
func (s *Series) Append(smp model.Sample) error {
	if err := s.checkAppend(smp); err != nil {
		return err
	}
	s.samples = append(s.samples, smp)
	s.notify(Event{Kind: KindAppend, Sample: smp, Index: len(s.samples) - 1})
	return nil
}

// Revise replaces the tail with smp and notifies subscribers. Length is
// unchanged.
func (s *Series) Revise(smp model.Sample) error {
	if err := s.checkRevise(smp); err != nil {
		return err
	}
	i := len(s.samples) - 1
	s.samples[i] = smp
	s.notify(Event{Kind: KindRevise, Sample: smp, Index: i})
	return nil
}

func (s *Series) checkAppend(smp model.Sample) error {
	if n := len(s.samples); n > 0 && smp.TS.Before(s.samples[n-1].TS) {
		return &OutOfOrderError{Series: s.name, Tail: s.samples[n-1].TS, Got: smp.TS}
	}
	return nil
}

func (s *Series) checkRevise(smp model.Sample) error {
	n := len(s.samples)
	if n == 0 {
		return &EmptySeriesError{Series: s.name}
	}
	if n > 1 && smp.TS.Before(s.samples[n-2].TS) {
		return &OutOfOrderError{Series: s.name, Tail: s.samples[n-2].TS, Got: smp.TS}
	}
	return nil
}

// Subscribe registers h. Handlers run in registration order.
func (s *Series) Subscribe(h Handler) *Subscription {
	sub := &Subscription{owner: s, handler: h, active: true}
	s.subs = append(s.subs, sub)
	return sub
}

// Subscribers returns the number of active subscriptions.
func (s *Series) Subscribers() int { return len(s.subs) }

// remove rebuilds the registry instead of editing it in place, so a dispatch
// loop iterating an older snapshot is never disturbed.
func (s *Series) remove(target *Subscription) {
	next := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub != target {
			next = append(next, sub)
		}
	}
	s.subs = next
}

func (s *Series) notify(ev Event) {
	subs := s.subs[:len(s.subs):len(s.subs)]
	for _, sub := range subs {
		if sub.active {
			sub.handler(ev)
		}
	}
}
