package model

import (
	"math"
	"time"
)

// Sample is a single timestamped scalar. TS is the ordering key; two samples
// may share a timestamp when the second revises the first.
type Sample struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// IsNaN reports whether the sample carries no usable value.
func (s Sample) IsNaN() bool { return math.IsNaN(s.Value) }

// Tick represents a single trade print from a feed. Prices are plain float64
// in quote currency.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
	TS     time.Time `json:"ts"` // UTC
}
