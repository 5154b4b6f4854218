package model

// ── Storage Port Interfaces ──
// These interfaces decouple the engine and binaries from concrete storage
// implementations. The SQLite store satisfies both.

// BarWriter persists finalized bars.
type BarWriter interface {
	// WriteBars upserts bars keyed by (symbol, tf, ts).
	WriteBars(bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads bars for backfill and replay.
type BarReader interface {
	// ReadBars reads bars for one symbol and TF with ts > afterTS (Unix
	// seconds), oldest first. limit <= 0 means no limit; otherwise the most
	// recent limit bars are returned, still oldest first.
	ReadBars(symbol string, tf int, afterTS int64, limit int) ([]Bar, error)

	// Symbols lists the symbols stored for a TF.
	Symbols(tf int) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
