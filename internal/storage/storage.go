package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devblac/bridge-relay/internal/config"
)

// Status is the ledger state of a processed source event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusTimedOut  Status = "timed_out"
	StatusRejected  Status = "rejected"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusReverted, StatusTimedOut, StatusRejected, StatusSkipped, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Cursor is the last scanned height for one (chain, kind) pair.
type Cursor struct {
	Chain     string
	Kind      string
	Height    uint64
	UpdatedAt time.Time
}

// Key identifies a source event: (chain, transaction hash, log index).
type Key struct {
	Chain    string `json:"chain"`
	TxHash   string `json:"tx_hash"`
	LogIndex uint   `json:"log_index"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Chain, k.TxHash, k.LogIndex)
}

func (k Key) validate() error {
	if k.Chain == "" || k.TxHash == "" {
		return errors.New("chain and tx hash required")
	}
	return nil
}

// Record is one row of the processed-event ledger.
type Record struct {
	Key       Key       `json:"key"`
	Kind      string    `json:"kind"`
	Height    uint64    `json:"height"`
	Direction string    `json:"direction"`
	Status    Status    `json:"status"`
	RelayTx   string    `json:"relay_tx,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists scan cursors and the processed-event ledger.
type Store interface {
	GetCursor(ctx context.Context, chain, kind string) (height uint64, ok bool, err error)
	// AdvanceCursor moves the cursor forward; a height at or below the stored
	// one is ignored.
	AdvanceCursor(ctx context.Context, chain, kind string, height uint64) error
	// ResetCursor overwrites the cursor, allowing an operator to rewind.
	ResetCursor(ctx context.Context, chain, kind string, height uint64) error
	ListCursors(ctx context.Context) ([]Cursor, error)

	// Claim inserts a pending record. It reports false, without error, when the
	// key has already been claimed.
	Claim(ctx context.Context, rec Record) (bool, error)
	Complete(ctx context.Context, key Key, status Status, relayTx, detail string) error
	Lookup(ctx context.Context, key Key) (Record, bool, error)
	Forget(ctx context.Context, key Key) (bool, error)
	// ListProcessed returns ledger records, newest first. limit <= 0 means all.
	ListProcessed(ctx context.Context, limit int) ([]Record, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by the global configuration.
func Open(g config.GlobalConfig) (Store, error) {
	switch g.Store {
	case "", config.StoreSQLite:
		return OpenSQLite(g.DBPath)
	case config.StoreRedis:
		return OpenRedis(g.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store %q", g.Store)
	}
}
