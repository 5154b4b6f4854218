package indicator

import (
	"log"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Backfiller warms pipelines from stored bars before live processing starts.
type Backfiller struct {
	reader model.BarReader
	tf     int

	// Limit caps the bars read per symbol. 0 uses the engine's lookback.
	Limit int
}

// NewBackfiller creates a backfiller reading bars of one timeframe.
func NewBackfiller(reader model.BarReader, tf int) *Backfiller {
	return &Backfiller{reader: reader, tf: tf}
}

// Run feeds the most recent bars of every symbol (or of all stored symbols
// when symbols is empty) into the engine as appends. If onResults is non-nil
// it receives the results of every bar, so callers can populate history
// sinks. Returns the number of bars fed.
func (b *Backfiller) Run(engine *Engine, symbols []string, onResults func([]model.IndicatorResult)) int {
	if b.reader == nil {
		return 0
	}
	limit := b.Limit
	if limit <= 0 {
		limit = engine.Lookback()
	}
	if limit <= 0 {
		return 0
	}

	if len(symbols) == 0 {
		var err error
		symbols, err = b.reader.Symbols(b.tf)
		if err != nil {
			log.Printf("[backfill] WARNING: failed to list symbols for TF=%d: %v", b.tf, err)
			return 0
		}
	}

	total := 0
	for _, sym := range symbols {
		bars, err := b.reader.ReadBars(sym, b.tf, 0, limit)
		if err != nil {
			log.Printf("[backfill] WARNING: failed to read %s TF=%d: %v", sym, b.tf, err)
			continue
		}

		fed := 0
		for _, bar := range bars {
			results, err := engine.Process(bar, false)
			if err != nil {
				log.Printf("[backfill] %s: %v", sym, err)
				continue
			}
			if onResults != nil && len(results) > 0 {
				onResults(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			log.Printf("[backfill] fed %d bars for %s TF=%d", fed, sym, b.tf)
		}
	}

	if total > 0 {
		log.Printf("[backfill] fed %d total bars", total)
	}
	return total
}
