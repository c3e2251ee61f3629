// Package sqlite is the durable batched store for SBars, KeyZones, and
// periodic Analysis Engine snapshots. Grounded on teacher's
// internal/store/sqlite/{writer,reader}.go (WAL pragma, single-writer
// connection pool, batched-transaction flush loop), re-keyed to the SBar/
// KeyZone/engine.Snapshot schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ligl/struxis/internal/engine"
	"github.com/ligl/struxis/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sbars (
			symbol       TEXT    NOT NULL,
			venue        TEXT    NOT NULL,
			tf           INTEGER NOT NULL,
			ts_ms        INTEGER NOT NULL,
			open         REAL    NOT NULL,
			high         REAL    NOT NULL,
			low          REAL    NOT NULL,
			close        REAL    NOT NULL,
			volume       REAL,
			open_interest REAL,
			turnover     REAL,
			PRIMARY KEY (symbol, venue, tf, ts_ms)
		);

		CREATE TABLE IF NOT EXISTS keyzones (
			symbol          TEXT    NOT NULL,
			tf              INTEGER NOT NULL,
			id              INTEGER NOT NULL,
			origin          INTEGER NOT NULL,
			orientation     INTEGER NOT NULL,
			upper           REAL    NOT NULL,
			lower           REAL    NOT NULL,
			touch_count     INTEGER NOT NULL,
			last_touch_id   INTEGER NOT NULL,
			direction_hint  INTEGER NOT NULL,
			sbar_start_id   INTEGER NOT NULL,
			sbar_end_id     INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf, id)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads SBars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever comes first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.SBar) {
	batch := make([]model.SBar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBatch(bars []model.SBar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO sbars (symbol, venue, tf, ts_ms, open, high, low, close, volume, open_interest, turnover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.Venue, int(b.Timeframe), b.Datetime.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.OpenInterest, b.Turnover)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestampMs returns the last stored bar's timestamp (unix millis)
// for a given symbol/venue/timeframe. Returns 0 if no bars exist.
func (w *Writer) GetLastTimestampMs(symbol, venue string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts_ms) FROM sbars WHERE symbol = ? AND venue = ? AND tf = ?`,
		symbol, venue, int(tf),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveKeyZone upserts a KeyZone for a symbol/timeframe.
func (w *Writer) SaveKeyZone(symbol string, z model.KeyZone) error {
	_, err := w.db.Exec(`
		INSERT OR REPLACE INTO keyzones
			(symbol, tf, id, origin, orientation, upper, lower, touch_count, last_touch_id, direction_hint, sbar_start_id, sbar_end_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, symbol, int(z.Timeframe), z.ID, int(z.Origin), int(z.Orientation), z.Upper, z.Lower,
		z.TouchCount, z.LastTouchID, int(z.DirectionHint), z.SBarStartID, z.SBarEndID)
	return err
}

// SaveSnapshot persists an Analysis Engine snapshot for symbol, pruning all
// but the 10 most recent snapshots for that symbol.
func (w *Writer) SaveSnapshot(symbol string, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = w.db.Exec(`INSERT INTO snapshots (symbol, data) VALUES (?, ?)`, symbol, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`
		DELETE FROM snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE symbol = ? ORDER BY created_at DESC LIMIT 10
		)
	`, symbol, symbol)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
