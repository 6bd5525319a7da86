package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore wraps SQLite-backed persistence for cursors and the processed ledger.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite initializes a SQLite database and runs minimal schema setup.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  chain       TEXT NOT NULL,
  kind        TEXT NOT NULL,
  height      INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(chain, kind)
);

CREATE TABLE IF NOT EXISTS processed (
  chain       TEXT NOT NULL,
  txhash      TEXT NOT NULL,
  log_index   INTEGER NOT NULL,
  kind        TEXT NOT NULL,
  height      INTEGER NOT NULL,
  direction   TEXT NOT NULL,
  status      TEXT NOT NULL,
  relay_tx    TEXT NOT NULL DEFAULT '',
  detail      TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMP NOT NULL,
  updated_at  TIMESTAMP NOT NULL,
  PRIMARY KEY(chain, txhash, log_index)
);

CREATE INDEX IF NOT EXISTS processed_created ON processed(created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// GetCursor retrieves the cursor for a (chain, kind) pair.
func (s *SQLiteStore) GetCursor(ctx context.Context, chain, kind string) (height uint64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT height FROM cursors WHERE chain = ? AND kind = ?;
`, chain, kind)
	switch err = row.Scan(&height); err {
	case nil:
		return height, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
}

// AdvanceCursor records height when it is above the stored cursor.
func (s *SQLiteStore) AdvanceCursor(ctx context.Context, chain, kind string, height uint64) error {
	if chain == "" || kind == "" {
		return errors.New("chain and kind required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (chain, kind, height, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(chain, kind) DO UPDATE SET
  height=excluded.height,
  updated_at=excluded.updated_at
WHERE excluded.height > cursors.height;
`, chain, kind, height, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// ResetCursor overwrites the cursor regardless of its current value.
func (s *SQLiteStore) ResetCursor(ctx context.Context, chain, kind string, height uint64) error {
	if chain == "" || kind == "" {
		return errors.New("chain and kind required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (chain, kind, height, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(chain, kind) DO UPDATE SET
  height=excluded.height,
  updated_at=excluded.updated_at;
`, chain, kind, height, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}

// ListCursors returns every cursor ordered by chain and kind.
func (s *SQLiteStore) ListCursors(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chain, kind, height, updated_at FROM cursors ORDER BY chain, kind;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.Chain, &c.Kind, &c.Height, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Claim inserts a pending ledger row; the primary key enforces one claim per event.
func (s *SQLiteStore) Claim(ctx context.Context, rec Record) (bool, error) {
	if err := rec.Key.validate(); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	status := rec.Status
	if status == "" {
		status = StatusPending
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO processed (chain, txhash, log_index, kind, height, direction, status, relay_tx, detail, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chain, txhash, log_index) DO NOTHING;
`, rec.Key.Chain, rec.Key.TxHash, rec.Key.LogIndex, rec.Kind, rec.Height, rec.Direction,
		string(status), rec.RelayTx, rec.Detail, now, now)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", rec.Key, err)
	}
	return n == 1, nil
}

// Complete records the final status of a claimed event.
func (s *SQLiteStore) Complete(ctx context.Context, key Key, status Status, relayTx, detail string) error {
	if err := key.validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE processed SET status = ?, relay_tx = ?, detail = ?, updated_at = ?
WHERE chain = ? AND txhash = ? AND log_index = ?;
`, string(status), relayTx, detail, time.Now().UTC(), key.Chain, key.TxHash, key.LogIndex)
	if err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete %s: not claimed", key)
	}
	return nil
}

// Lookup fetches the ledger row for key.
func (s *SQLiteStore) Lookup(ctx context.Context, key Key) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT chain, txhash, log_index, kind, height, direction, status, relay_tx, detail, created_at, updated_at
FROM processed WHERE chain = ? AND txhash = ? AND log_index = ?;
`, key.Chain, key.TxHash, key.LogIndex)
	rec, err := scanRecord(row)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return Record{}, false, nil
	default:
		return Record{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
}

// Forget removes the ledger row so the event can be relayed again.
func (s *SQLiteStore) Forget(ctx context.Context, key Key) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM processed WHERE chain = ? AND txhash = ? AND log_index = ?;
`, key.Chain, key.TxHash, key.LogIndex)
	if err != nil {
		return false, fmt.Errorf("forget %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListProcessed returns ledger rows, newest first.
func (s *SQLiteStore) ListProcessed(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT chain, txhash, log_index, kind, height, direction, status, relay_tx, detail, created_at, updated_at
FROM processed ORDER BY created_at DESC, height DESC, log_index DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan processed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec    Record
		status string
	)
	err := r.Scan(&rec.Key.Chain, &rec.Key.TxHash, &rec.Key.LogIndex, &rec.Kind, &rec.Height,
		&rec.Direction, &status, &rec.RelayTx, &rec.Detail, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
