package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

type readCall struct{ from, to uint64 }

type fakeSource struct {
	height  uint64
	events  []chain.Event
	readErr error
	reads   []readCall
}

func (f *fakeSource) Name() string { return "source" }

func (f *fakeSource) CurrentHeight(context.Context) (uint64, error) { return f.height, nil }

func (f *fakeSource) ReadEvents(_ context.Context, kind chain.Kind, from, to uint64) ([]chain.Event, error) {
	f.reads = append(f.reads, readCall{from, to})
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []chain.Event
	for _, ev := range f.events {
		if ev.Kind == kind && ev.Height >= from && ev.Height <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func lockAt(height uint64) chain.Event {
	return chain.Event{Chain: "source", Kind: chain.KindLock, Height: height, TxHash: common.BigToHash(new(big.Int).SetUint64(height))}
}

func TestPlanWindowBoundary(t *testing.T) {
	cases := []struct {
		name      string
		head      uint64
		cursor    uint64
		hasCursor bool
		want      Window
	}{
		{"height below lookback", 3, 0, false, Window{From: 0, To: 3}},
		{"fresh start", 100, 0, false, Window{From: 95, To: 100}},
		{"cursor clamps from", 101, 100, true, Window{From: 101, To: 101}},
		{"cursor at head", 100, 100, true, Window{From: 100, To: 100, Empty: true}},
		{"cursor ahead of head", 90, 100, true, Window{From: 90, To: 90, Empty: true}},
		{"cursor behind window", 200, 10, true, Window{From: 195, To: 200}},
		{"cursor at zero", 2, 0, true, Window{From: 1, To: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Plan(tc.head, tc.cursor, tc.hasCursor, 5)
			if got != tc.want {
				t.Fatalf("Plan(%d, %d, %v) = %+v, want %+v", tc.head, tc.cursor, tc.hasCursor, got, tc.want)
			}
		})
	}
}

func TestScanAdvancesCursorAndClamps(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{height: 100, events: []chain.Event{lockAt(97)}}
	s := New(src, store, chain.KindLock, Options{Lookback: 5}, nil)
	ctx := context.Background()

	w, events, err := s.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if w.From != 95 || w.To != 100 || len(events) != 1 || events[0].Height != 97 {
		t.Fatalf("first scan window=%s events=%d", w, len(events))
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 100 {
		t.Fatalf("cursor = %d, want 100", h)
	}

	src.height = 101
	w, events, err = s.Scan(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if w.From != 101 || w.To != 101 || len(events) != 0 {
		t.Fatalf("second scan window=%s events=%d", w, len(events))
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 101 {
		t.Fatalf("cursor = %d, want 101", h)
	}
}

func TestScanNoOpWhenCursorAtHead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.AdvanceCursor(ctx, "source", "Lock", 100); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}
	src := &fakeSource{height: 100}
	s := New(src, store, chain.KindLock, Options{Lookback: 5}, nil)

	w, events, err := s.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !w.Empty || len(events) != 0 || len(src.reads) != 0 {
		t.Fatalf("expected no read, window=%s reads=%d", w, len(src.reads))
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 100 {
		t.Fatalf("cursor moved: %d", h)
	}
}

func TestScanErrorKeepsCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.AdvanceCursor(ctx, "source", "Lock", 96); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}
	src := &fakeSource{height: 100, readErr: fmt.Errorf("%w: dial tcp", chain.ErrConnectivity)}
	s := New(src, store, chain.KindLock, Options{Lookback: 5}, nil)

	_, events, err := s.Scan(ctx)
	if !errors.Is(err, chain.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events on error")
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 96 {
		t.Fatalf("cursor advanced on error: %d", h)
	}

	src.readErr = nil
	if _, _, err := s.Scan(ctx); err != nil {
		t.Fatalf("retry scan: %v", err)
	}
	last := src.reads[len(src.reads)-1]
	if last.from != 97 || last.to != 100 {
		t.Fatalf("retry should rescan the same range, got %+v", last)
	}
}

func TestScanCursorMonotonic(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{}
	s := New(src, store, chain.KindLock, Options{Lookback: 5}, nil)
	ctx := context.Background()

	var prev uint64
	for _, h := range []uint64{3, 10, 10, 8, 25, 24, 40} {
		src.height = h
		if _, _, err := s.Scan(ctx); err != nil {
			t.Fatalf("scan at %d: %v", h, err)
		}
		cur, _, _ := store.GetCursor(ctx, "source", "Lock")
		if cur < prev {
			t.Fatalf("cursor decreased from %d to %d", prev, cur)
		}
		if cur > h && cur != prev {
			t.Fatalf("cursor %d exceeds head %d", cur, h)
		}
		prev = cur
	}
	if prev != 40 {
		t.Fatalf("final cursor = %d", prev)
	}
}

func TestScanRespectsConfirmations(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{height: 2}
	s := New(src, store, chain.KindLock, Options{Lookback: 5, Confirmations: 3}, nil)
	ctx := context.Background()

	w, _, err := s.Scan(ctx)
	if err != nil || !w.Empty {
		t.Fatalf("expected empty window below confirmation depth, got %s err=%v", w, err)
	}

	src.height = 20
	w, _, err = s.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if w.To != 17 || w.From != 12 {
		t.Fatalf("window = %s, want [12,17]", w)
	}
}

func TestScanRangeReachesPastLookback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.ResetCursor(ctx, "source", "Lock", 50); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}
	src := &fakeSource{height: 100, events: []chain.Event{lockAt(60), lockAt(97)}}
	s := New(src, store, chain.KindLock, Options{Lookback: 5}, nil)

	// The regular window starts at head-lookback and never reads block 60.
	_, events, err := s.Scan(ctx)
	if err != nil || len(events) != 1 || events[0].Height != 97 {
		t.Fatalf("scan events=%v err=%v", events, err)
	}

	src.reads = nil
	events, err = s.ScanRange(ctx, 40, 100)
	if err != nil {
		t.Fatalf("scan range: %v", err)
	}
	if len(events) != 2 || events[0].Height != 60 || events[1].Height != 97 {
		t.Fatalf("range events = %v", events)
	}
	want := []readCall{{40, 69}, {70, 99}, {100, 100}}
	if len(src.reads) != len(want) {
		t.Fatalf("reads = %v, want %v", src.reads, want)
	}
	for i := range want {
		if src.reads[i] != want[i] {
			t.Fatalf("reads = %v, want %v", src.reads, want)
		}
	}
	if h, _, _ := store.GetCursor(ctx, "source", "Lock"); h != 100 {
		t.Fatalf("cursor changed by replay: %d", h)
	}
}

func TestScanRangeBounds(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{height: 100}
	s := New(src, store, chain.KindLock, Options{Lookback: 5, Confirmations: 2}, nil)
	ctx := context.Background()

	if _, err := s.ScanRange(ctx, 10, 5); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := s.ScanRange(ctx, 90, 99); err == nil {
		t.Fatalf("expected error past the confirmed head")
	}
	if _, err := s.ScanRange(ctx, 98, 98); err != nil {
		t.Fatalf("single confirmed block: %v", err)
	}
	if len(src.reads) != 1 || src.reads[0] != (readCall{98, 98}) {
		t.Fatalf("reads = %v", src.reads)
	}

	src.readErr = fmt.Errorf("%w: dial tcp", chain.ErrConnectivity)
	if _, err := s.ScanRange(ctx, 0, 50); !errors.Is(err, chain.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}
