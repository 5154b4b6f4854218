// Package sink distributes indicator results to the output adapters.
package sink

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

type output struct {
	name    string
	ch      chan model.IndicatorResult
	dropped atomic.Uint64
}

// FanOut hands every engine result to each named sink (redis, ws, alert) in
// subscription order. Sinks do not wait on each other: when a sink's queue is
// full that sink misses the result.
type FanOut struct {
	mu      sync.RWMutex
	outputs []*output
	bufSize int

	// OnDrop is called for every result a sink missed. Without it drops are
	// logged.
	OnDrop func(sink string, r model.IndicatorResult)
}

// NewFanOut creates a FanOut whose sink queues hold bufSize results.
func NewFanOut(bufSize int) *FanOut {
	return &FanOut{bufSize: bufSize}
}

// Subscribe registers a sink under name. Call before Run.
func (f *FanOut) Subscribe(name string) <-chan model.IndicatorResult {
	o := &output{name: name, ch: make(chan model.IndicatorResult, f.bufSize)}
	f.mu.Lock()
	f.outputs = append(f.outputs, o)
	f.mu.Unlock()
	return o.ch
}

// Run distributes results until ctx is cancelled or in is closed, then
// closes every sink queue.
func (f *FanOut) Run(ctx context.Context, in <-chan model.IndicatorResult) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, o := range f.outputs {
				select {
				case o.ch <- r:
				default:
					o.dropped.Add(1)
					if f.OnDrop != nil {
						f.OnDrop(o.name, r)
					} else {
						log.Printf("[sink] %s queue full, dropping %s ts=%v", o.name, r.Channel(), r.TS)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// SinkStat is the queue state of one sink.
type SinkStat struct {
	Name    string
	Len     int
	Cap     int
	Dropped uint64
}

// Stats reports every sink's queue fill and drop count.
func (f *FanOut) Stats() []SinkStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]SinkStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = SinkStat{Name: o.name, Len: len(o.ch), Cap: cap(o.ch), Dropped: o.dropped.Load()}
	}
	return stats
}
