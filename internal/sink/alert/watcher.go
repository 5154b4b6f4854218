package alert

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Watcher follows the tails of selected series and raises an alert when a
// bar closes on a non-zero signal. Revisions of the open bar never fire.
type Watcher struct {
	notifier Notifier
	series   map[string]bool
	tails    map[string]model.IndicatorResult // channel -> open tail

	OnAlert func(a Alert)
}

// NewWatcher watches the named series. An empty list watches nothing.
func NewWatcher(n Notifier, series []string) *Watcher {
	w := &Watcher{
		notifier: n,
		series:   make(map[string]bool, len(series)),
		tails:    make(map[string]model.IndicatorResult),
	}
	for _, s := range series {
		w.series[s] = true
	}
	return w
}

// Observe records r and returns the alert for the tail it committed, if any.
func (w *Watcher) Observe(r model.IndicatorResult) (Alert, bool) {
	if !w.series[r.Name] {
		return Alert{}, false
	}
	ch := r.Channel()
	prev, ok := w.tails[ch]
	if ok && r.TS.Before(prev.TS) {
		return Alert{}, false
	}
	w.tails[ch] = r
	if !ok || !r.TS.After(prev.TS) || !prev.Hot {
		return Alert{}, false
	}
	if prev.Value == 0 || math.IsNaN(prev.Value) {
		return Alert{}, false
	}

	dir := "bullish"
	if prev.Value < 0 {
		dir = "bearish"
	}
	return Alert{
		Level:   LevelInfo,
		Title:   fmt.Sprintf("%s %s %s", prev.Symbol, prev.Name, dir),
		Message: fmt.Sprintf("%s crossed %s on the %ds bar at %s", prev.Name, dir, prev.TF, prev.TS.Format("2006-01-02 15:04:05")),
		Symbol:  prev.Symbol,
		Series:  prev.Name,
		Value:   prev.Value,
		TS:      prev.TS,
	}, true
}

// Run observes results until ctx is cancelled or in is closed. Delivery
// failures are logged.
func (w *Watcher) Run(ctx context.Context, in <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			a, fire := w.Observe(r)
			if !fire {
				continue
			}
			if w.OnAlert != nil {
				w.OnAlert(a)
			}
			if err := w.notifier.Send(ctx, a); err != nil {
				log.Printf("[alert] delivery failed: %v", err)
			}
		}
	}
}
