package model

import (
	"encoding/json"
	"math"
	"time"
)

// Bar is an OHLCV bar for a single symbol and timeframe.
// TF is the timeframe duration in seconds (e.g., 60 = 1 minute).
type Bar struct {
	Symbol string    `json:"symbol"`
	TF     int       `json:"tf"`
	TS     time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Key returns "symbol:tf".
func (b *Bar) Key() string {
	return b.Symbol + ":" + Itoa(b.TF)
}

// JSON returns the JSON-encoded bar.
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// Field selects one scalar projection of a Bar.
type Field int

const (
	FieldOpen Field = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
)

// Fields lists every projection in bar order.
var Fields = [...]Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

func (f Field) String() string {
	switch f {
	case FieldOpen:
		return "open"
	case FieldHigh:
		return "high"
	case FieldLow:
		return "low"
	case FieldClose:
		return "close"
	case FieldVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// ParseField maps "open", "high", "low", "close" or "volume" to a Field.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// Project extracts the selected scalar from a bar as a Sample.
func (f Field) Project(b Bar) Sample {
	var v float64
	switch f {
	case FieldOpen:
		v = b.Open
	case FieldHigh:
		v = b.High
	case FieldLow:
		v = b.Low
	case FieldClose:
		v = b.Close
	case FieldVolume:
		v = b.Volume
	default:
		v = math.NaN()
	}
	return Sample{TS: b.TS, Value: v}
}

// IndicatorResult holds the current tail of one derived series for a symbol.
type IndicatorResult struct {
	Name    string    `json:"name"` // e.g. "SMA_20", "EMA_9", "RSI_14"
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"`
	Value   float64   `json:"value"`
	TS      time.Time `json:"ts"`
	Hot     bool      `json:"hot"`     // true once the series is past warmup
	Revised bool      `json:"revised"` // true when produced by a revision of the open bar
}

// Channel returns the pub/sub channel name: "ind:{name}:{TF}s:{symbol}".
func (r *IndicatorResult) Channel() string {
	return "ind:" + r.Name + ":" + Itoa(r.TF) + "s:" + r.Symbol
}

// MarshalJSON encodes NaN and ±Inf values as null; encoding/json rejects them.
func (r IndicatorResult) MarshalJSON() ([]byte, error) {
	type alias IndicatorResult
	out := struct {
		alias
		Value *float64 `json:"value"`
	}{alias: alias(r)}
	if !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) {
		v := r.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	data, _ := json.Marshal(r)
	return data
}

// Itoa formats small non-negative and negative ints without strconv. Used when
// building series names and channel keys on every tick.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for ; n > 0; n /= 10 {
		i--
		buf[i] = byte('0' + n%10)
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BarUpdate is one change to the newest bar of a symbol: a new bar
// (Revise=false) or a replacement of the one still forming (Revise=true).
type BarUpdate struct {
	Bar    Bar
	Revise bool
}
