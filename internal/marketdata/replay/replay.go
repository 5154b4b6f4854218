// Package replay streams stored bars in timestamp order for backtests,
// optionally pacing them to a multiple of real time.
package replay

import (
	"context"
	"log"
	"time"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// maxGap caps the sleep between two bars when pacing.
const maxGap = 5 * time.Second

// Source yields every bar of a timeframe ordered by timestamp.
type Source interface {
	ReadAllBars(tf int, afterTS int64) ([]model.Bar, error)
}

// Replayer reads historical bars and replays them as appends.
type Replayer struct {
	src Source

	// Accept filters symbols. Nil accepts everything.
	Accept func(symbol string) bool
}

// New creates a Replayer over src (the SQLite reader in practice).
func New(src Source) *Replayer {
	return &Replayer{src: src}
}

// Run emits every bar of tf with ts > fromTS into out. speed is the playback
// rate: 1 is real time, 100 is 100x, 0 is as fast as the consumer reads.
// Returns the number of bars emitted. out is not closed.
func (r *Replayer) Run(ctx context.Context, tf int, fromTS int64, speed float64, out chan<- model.BarUpdate) (int, error) {
	bars, err := r.src.ReadAllBars(tf, fromTS)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		log.Println("[replay] no bars found")
		return 0, nil
	}
	log.Printf("[replay] loaded %d bars tf=%ds, speed=%.1fx", len(bars), tf, speed)

	var prevTS time.Time
	emitted := 0
	for _, b := range bars {
		if r.Accept != nil && !r.Accept(b.Symbol) {
			continue
		}
		if speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				wait := time.Duration(float64(gap) / speed)
				if wait > maxGap {
					wait = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		prevTS = b.TS

		select {
		case out <- model.BarUpdate{Bar: b}:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return emitted, ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return emitted, nil
}
