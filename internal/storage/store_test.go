package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/devblac/bridge-relay/internal/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCursorAdvanceIsMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetCursor(ctx, "source", "Lock"); err != nil || ok {
		t.Fatalf("expected no cursor, ok=%v err=%v", ok, err)
	}
	if err := store.AdvanceCursor(ctx, "source", "Lock", 100); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if err := store.AdvanceCursor(ctx, "source", "Lock", 90); err != nil {
		t.Fatalf("advance cursor lower: %v", err)
	}
	h, ok, err := store.GetCursor(ctx, "source", "Lock")
	if err != nil || !ok || h != 100 {
		t.Fatalf("cursor moved backwards: %d ok=%v err=%v", h, ok, err)
	}

	if err := store.AdvanceCursor(ctx, "source", "Lock", 101); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 101 {
		t.Fatalf("cursor not advanced: %d", h)
	}

	if _, ok, _ := store.GetCursor(ctx, "source", "Burn"); ok {
		t.Fatalf("cursors must be keyed by kind")
	}
}

func TestCursorResetRewinds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AdvanceCursor(ctx, "destination", "Burn", 500); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if err := store.ResetCursor(ctx, "destination", "Burn", 420); err != nil {
		t.Fatalf("reset cursor: %v", err)
	}
	if h, _, _ := store.GetCursor(ctx, "destination", "Burn"); h != 420 {
		t.Fatalf("reset not applied: %d", h)
	}
	if err := store.AdvanceCursor(ctx, "source", "Lock", 7); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}

	cursors, err := store.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 2 || cursors[0].Chain != "destination" || cursors[1].Height != 7 {
		t.Fatalf("unexpected cursors: %+v", cursors)
	}
	if cursors[0].UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be set")
	}
}

func TestLedgerClaimOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := Key{Chain: "source", TxHash: "0xabc", LogIndex: 3}
	rec := Record{Key: key, Kind: "Lock", Height: 97, Direction: config.SourceToDestination}

	ok, err := store.Claim(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("first claim should win, ok=%v err=%v", ok, err)
	}
	ok, err = store.Claim(ctx, rec)
	if err != nil || ok {
		t.Fatalf("second claim should lose, ok=%v err=%v", ok, err)
	}

	other := rec
	other.Key.LogIndex = 4
	if ok, _ := store.Claim(ctx, other); !ok {
		t.Fatalf("different log index is a different event")
	}

	got, found, err := store.Lookup(ctx, key)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if got.Status != StatusPending || got.Height != 97 || got.Kind != "Lock" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.Complete(ctx, key, StatusConfirmed, "0xrelay", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _, _ = store.Lookup(ctx, key)
	if got.Status != StatusConfirmed || got.RelayTx != "0xrelay" {
		t.Fatalf("complete not applied: %+v", got)
	}

	if err := store.Complete(ctx, Key{Chain: "source", TxHash: "0xdef"}, StatusFailed, "", "x"); err == nil {
		t.Fatalf("completing an unclaimed key should fail")
	}
}

func TestLedgerForgetAllowsReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := Key{Chain: "destination", TxHash: "0x01", LogIndex: 0}
	if _, err := store.Claim(ctx, Record{Key: key, Kind: "Burn", Direction: config.DestinationToSource}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, key, StatusTimedOut, "0xfeed", "no receipt"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	removed, err := store.Forget(ctx, key)
	if err != nil || !removed {
		t.Fatalf("forget: removed=%v err=%v", removed, err)
	}
	if removed, _ := store.Forget(ctx, key); removed {
		t.Fatalf("second forget should report nothing removed")
	}
	if ok, _ := store.Claim(ctx, Record{Key: key, Kind: "Burn"}); !ok {
		t.Fatalf("forgotten key should be claimable again")
	}
}

func TestListProcessedLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := uint(0); i < 5; i++ {
		if _, err := store.Claim(ctx, Record{Key: Key{Chain: "source", TxHash: "0xaa", LogIndex: i}, Kind: "Lock", Height: 10}); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
	all, err := store.ListProcessed(ctx, 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("list all: n=%d err=%v", len(all), err)
	}
	some, err := store.ListProcessed(ctx, 2)
	if err != nil || len(some) != 2 {
		t.Fatalf("list limited: n=%d err=%v", len(some), err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	st, err := Open(config.GlobalConfig{Store: config.StoreSQLite, DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := Open(config.GlobalConfig{Store: "leveldb"}); err == nil {
		t.Fatalf("expected unknown store error")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("confirmed"); err != nil {
		t.Fatalf("parse confirmed: %v", err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
