package series

import (
	"log"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Settled republishes a source with at most one sample per timestamp. A
// sample whose timestamp is not after the current tail revises it instead of
// appending. Put it behind a Pair whose inputs share an ancestor so that
// downstream state advances once per upstream step rather than once per
// branch.
type Settled struct {
	out *Series
	src Source
	sub *Subscription
}

// NewSettled replays src's existing samples, then follows it.
func NewSettled(name string, src Source) (*Settled, error) {
	if src == nil {
		return nil, Configf(name, "source", "must not be nil")
	}
	s := &Settled{out: New(name), src: src}
	for i := 0; i < src.Len(); i++ {
		if err := s.push(src.At(i)); err != nil {
			return nil, err
		}
	}
	s.sub = src.Subscribe(func(ev Event) {
		if err := s.push(ev.Sample); err != nil {
			log.Printf("[series] %s: dropped %s: %v", s.out.Name(), ev.Kind, err)
		}
	})
	return s, nil
}

func (s *Settled) push(smp model.Sample) error {
	if last, ok := s.out.Last(); ok && !smp.TS.After(last.TS) {
		return s.out.Revise(smp)
	}
	return s.out.Append(smp)
}

// Close detaches from the source. Safe to call more than once.
func (s *Settled) Close() { s.sub.Unsubscribe() }

func (s *Settled) Name() string                      { return s.out.Name() }
func (s *Settled) Len() int                          { return s.out.Len() }
func (s *Settled) At(i int) model.Sample             { return s.out.At(i) }
func (s *Settled) Last() (model.Sample, bool)        { return s.out.Last() }
func (s *Settled) Values() []float64                 { return s.out.Values() }
func (s *Settled) Hot() bool                         { return s.out.Len() > 0 && s.src.Hot() }
func (s *Settled) Subscribe(h Handler) *Subscription { return s.out.Subscribe(h) }
