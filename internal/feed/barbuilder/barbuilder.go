// Package barbuilder folds trade ticks into fixed-timeframe OHLCV bars.
//
// Every tick produces one model.BarUpdate. The first tick of a bucket opens a
// new bar (Revise=false); later ticks in the same bucket replace the forming
// bar (Revise=true). A tick whose bucket is older than the forming one cannot
// be applied any more and is reported through OnStale.
package barbuilder

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

type barState struct {
	bucket int64
	ticks  int
	bar    model.Bar
}

// Builder aggregates ticks for a single timeframe. It is not safe for
// concurrent use; Run owns it when driven from a channel.
type Builder struct {
	tf     int
	states map[string]*barState

	// OnStale is called for every tick that lands in an already finished
	// bucket.
	OnStale func(t model.Tick)

	// OnBarClosed is called with the final value of a bar when the first tick
	// of the next bucket arrives, and for every forming bar on Flush.
	OnBarClosed func(b model.Bar)
}

// New creates a Builder for tf-second bars. tf must be positive.
func New(tf int) *Builder {
	if tf <= 0 {
		tf = 60
	}
	return &Builder{
		tf:     tf,
		states: make(map[string]*barState, 64),
	}
}

// TF returns the bar width in seconds.
func (b *Builder) TF() int { return b.tf }

// Process applies one tick and returns the resulting update. ok is false when
// the tick was rejected (stale, empty symbol or non-finite price).
func (b *Builder) Process(t model.Tick) (u model.BarUpdate, ok bool) {
	if t.Symbol == "" || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return model.BarUpdate{}, false
	}
	bucket := b.bucketOf(t.TS)

	st, exists := b.states[t.Symbol]
	if exists && bucket < st.bucket {
		if b.OnStale != nil {
			b.OnStale(t)
		}
		return model.BarUpdate{}, false
	}

	if exists && bucket > st.bucket {
		if b.OnBarClosed != nil {
			b.OnBarClosed(st.bar)
		}
		exists = false
	}

	if !exists {
		st = &barState{
			bucket: bucket,
			ticks:  1,
			bar: model.Bar{
				Symbol: t.Symbol,
				TF:     b.tf,
				TS:     time.Unix(bucket, 0).UTC(),
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: t.Qty,
			},
		}
		b.states[t.Symbol] = st
		return model.BarUpdate{Bar: st.bar}, true
	}

	fb := &st.bar
	if t.Price > fb.High {
		fb.High = t.Price
	}
	if t.Price < fb.Low {
		fb.Low = t.Price
	}
	fb.Close = t.Price
	fb.Volume += t.Qty
	st.ticks++
	return model.BarUpdate{Bar: *fb, Revise: true}, true
}

// Seed resumes symbol's forming bar from bar, e.g. the last bar restored from
// storage after a restart. Ticks in the same bucket then revise it and the
// first tick of a later bucket closes it. Bars of another timeframe, or older
// than the bar already forming, are ignored.
func (b *Builder) Seed(bar model.Bar) bool {
	if bar.Symbol == "" || bar.TF != b.tf {
		return false
	}
	bucket := b.bucketOf(bar.TS)
	if st, ok := b.states[bar.Symbol]; ok && st.bucket >= bucket {
		return false
	}
	bar.TS = time.Unix(bucket, 0).UTC()
	b.states[bar.Symbol] = &barState{bucket: bucket, ticks: 1, bar: bar}
	return true
}

func (b *Builder) bucketOf(t time.Time) int64 {
	ts := t.Unix()
	tf64 := int64(b.tf)
	bucket := ts - (ts % tf64)
	if ts < 0 && ts%tf64 != 0 {
		bucket -= tf64
	}
	return bucket
}

// Forming returns the bar currently being built for symbol.
func (b *Builder) Forming(symbol string) (model.Bar, bool) {
	st, ok := b.states[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return st.bar, true
}

// Flush reports every forming bar through OnBarClosed and forgets all state.
// It returns the number of bars flushed.
func (b *Builder) Flush() int {
	n := 0
	for sym, st := range b.states {
		if b.OnBarClosed != nil {
			b.OnBarClosed(st.bar)
		}
		delete(b.states, sym)
		n++
	}
	return n
}

// Run consumes ticks, emitting one update per accepted tick on out. It blocks
// until ctx is cancelled or ticks is closed, then flushes forming bars. out is
// not closed.
func (b *Builder) Run(ctx context.Context, ticks <-chan model.Tick, out chan<- model.BarUpdate) {
	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return
		case t, ok := <-ticks:
			if !ok {
				b.Flush()
				return
			}
			if u, ok := b.Process(t); ok {
				emit(ctx, out, u)
			}
		}
	}
}

// emit blocks until out accepts u. Revisions are not dropped: the last one
// of a bucket carries the final bar the engine commits.
func emit(ctx context.Context, out chan<- model.BarUpdate, u model.BarUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
		log.Printf("[barbuilder] shutdown, dropping update %s ts=%v", u.Bar.Key(), u.Bar.TS)
	}
}
