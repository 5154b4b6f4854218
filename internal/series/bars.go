package series

import (
	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// BarSeries is the root of a symbol's pipeline: one Series per bar field,
// written together. Subscribers of different fields are notified field by
// field in bar order (open, high, low, close, volume).
type BarSeries struct {
	symbol string
	tf     int
	fields [len(model.Fields)]*Series
	bars   []model.Bar
}

// NewBarSeries creates an empty bar series.
func NewBarSeries(symbol string, tf int) *BarSeries {
	b := &BarSeries{symbol: symbol, tf: tf}
	for i, f := range model.Fields {
		b.fields[i] = New(symbol + "." + f.String())
	}
	return b
}

// Symbol returns the symbol the series was created for.
func (b *BarSeries) Symbol() string { return b.symbol }

// TF returns the timeframe in seconds.
func (b *BarSeries) TF() int { return b.tf }

// Field returns the root series for one projection.
func (b *BarSeries) Field(f model.Field) *Series { return b.fields[f] }

// Len returns the number of bars.
func (b *BarSeries) Len() int { return len(b.bars) }

// At returns the i-th bar.
func (b *BarSeries) At(i int) model.Bar { return b.bars[i] }

// Last returns the newest bar.
func (b *BarSeries) Last() (model.Bar, bool) {
	if len(b.bars) == 0 {
		return model.Bar{}, false
	}
	return b.bars[len(b.bars)-1], true
}

// Append adds a new bar. The ordering check runs before any field is touched,
// so a rejected bar leaves every field unchanged.
func (b *BarSeries) Append(bar model.Bar) error {
	if err := b.fields[model.FieldClose].checkAppend(model.Sample{TS: bar.TS}); err != nil {
		return err
	}
	b.bars = append(b.bars, bar)
	for i, f := range model.Fields {
		if err := b.fields[i].Append(f.Project(bar)); err != nil {
			return err
		}
	}
	return nil
}

// Revise replaces the newest bar.
func (b *BarSeries) Revise(bar model.Bar) error {
	if err := b.fields[model.FieldClose].checkRevise(model.Sample{TS: bar.TS}); err != nil {
		return err
	}
	b.bars[len(b.bars)-1] = bar
	for i, f := range model.Fields {
		if err := b.fields[i].Revise(f.Project(bar)); err != nil {
			return err
		}
	}
	return nil
}
