package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ligl/struxis/internal/engine"
	"github.com/ligl/struxis/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadSBars reads bars for symbol/venue/tf, strictly after afterTSMs, ordered
// by timestamp ascending for correct replay order.
func (r *Reader) ReadSBars(symbol, venue string, tf model.Timeframe, afterTSMs int64) ([]model.SBar, error) {
	rows, err := r.db.Query(`
		SELECT open, high, low, close, volume, open_interest, turnover, ts_ms
		FROM sbars
		WHERE symbol = ? AND venue = ? AND tf = ? AND ts_ms > ?
		ORDER BY ts_ms ASC
	`, symbol, venue, int(tf), afterTSMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query sbars: %w", err)
	}
	defer rows.Close()

	var bars []model.SBar
	for rows.Next() {
		var b model.SBar
		var tsMs int64
		if err := rows.Scan(&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OpenInterest, &b.Turnover, &tsMs); err != nil {
			return nil, fmt.Errorf("sqlite scan sbars: %w", err)
		}
		b.Symbol, b.Venue, b.Timeframe = symbol, venue, tf
		b.Datetime = time.UnixMilli(tsMs).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadKeyZones reads every stored KeyZone for symbol/tf.
func (r *Reader) ReadKeyZones(symbol string, tf model.Timeframe) ([]model.KeyZone, error) {
	rows, err := r.db.Query(`
		SELECT id, origin, orientation, upper, lower, touch_count, last_touch_id, direction_hint, sbar_start_id, sbar_end_id
		FROM keyzones WHERE symbol = ? AND tf = ?
	`, symbol, int(tf))
	if err != nil {
		return nil, fmt.Errorf("sqlite query keyzones: %w", err)
	}
	defer rows.Close()

	var zones []model.KeyZone
	for rows.Next() {
		var z model.KeyZone
		var origin, orientation, dirHint int
		if err := rows.Scan(&z.ID, &origin, &orientation, &z.Upper, &z.Lower, &z.TouchCount, &z.LastTouchID, &dirHint, &z.SBarStartID, &z.SBarEndID); err != nil {
			return nil, fmt.Errorf("sqlite scan keyzones: %w", err)
		}
		z.Timeframe = tf
		z.Origin = model.KeyZoneOrigin(origin)
		z.Orientation = model.KeyZoneOrientation(orientation)
		z.DirectionHint = model.Direction(dirHint)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// ReadLatestSnapshot loads the most recent Analysis Engine snapshot for symbol.
func (r *Reader) ReadLatestSnapshot(symbol string) (*engine.Snapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM snapshots WHERE symbol = ? ORDER BY created_at DESC LIMIT 1
	`, symbol).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
