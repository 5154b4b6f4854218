package sqlite

import (
	"database/sql"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Reader provides read access for backfill and replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a fresh path reads as empty.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open reader")
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars returns bars for one symbol and TF with ts > afterTS, oldest
// first. With limit > 0 only the most recent limit bars are returned.
func (r *Reader) ReadBars(symbol string, tf int, afterTS int64, limit int) ([]model.Bar, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.Query(`
			SELECT symbol, tf, ts, open, high, low, close, volume FROM (
				SELECT * FROM bars
				WHERE symbol = ? AND tf = ? AND ts > ?
				ORDER BY ts DESC
				LIMIT ?
			) ORDER BY ts ASC
		`, symbol, tf, afterTS, limit)
	} else {
		rows, err = r.db.Query(`
			SELECT symbol, tf, ts, open, high, low, close, volume
			FROM bars
			WHERE symbol = ? AND tf = ? AND ts > ?
			ORDER BY ts ASC
		`, symbol, tf, afterTS)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite query bars %s:%d", symbol, tf)
	}
	return scanBars(rows)
}

// ReadAllBars returns every bar of a TF with ts > afterTS, ordered by
// timestamp then symbol.
func (r *Reader) ReadAllBars(tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, symbol ASC
	`, tf, afterTS)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite query all bars tf=%d", tf)
	}
	return scanBars(rows)
}

// Symbols lists the distinct symbols stored for a TF, sorted.
func (r *Reader) Symbols(tf int) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query symbols")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "sqlite scan symbol")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "sqlite iterate symbols")
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()
	var bars []model.Bar
	for rows.Next() {
		var (
			b      model.Bar
			tsUnix int64
			vol    sql.NullFloat64
		)
		if err := rows.Scan(&b.Symbol, &b.TF, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, errors.Wrap(err, "sqlite scan bar")
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume = vol.Float64
		bars = append(bars, b)
	}
	return bars, errors.Wrap(rows.Err(), "sqlite iterate bars")
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
