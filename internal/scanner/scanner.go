package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/bridge-relay/internal/chain"
)

// EventSource is the part of chain.Client the scanner reads from.
type EventSource interface {
	Name() string
	CurrentHeight(ctx context.Context) (uint64, error)
	ReadEvents(ctx context.Context, kind chain.Kind, from, to uint64) ([]chain.Event, error)
}

// CursorStore persists the last scanned height per (chain, kind).
type CursorStore interface {
	GetCursor(ctx context.Context, chain, kind string) (uint64, bool, error)
	AdvanceCursor(ctx context.Context, chain, kind string, height uint64) error
}

// Window is the inclusive block range read by one scan.
type Window struct {
	From  uint64
	To    uint64
	Empty bool
}

func (w Window) String() string {
	if w.Empty {
		return "[]"
	}
	return fmt.Sprintf("[%d,%d]", w.From, w.To)
}

// MaxReadSpan bounds the blocks covered by one ReadEvents call when an
// explicit range is replayed.
const MaxReadSpan = 30

// Options tunes the scan window.
type Options struct {
	// Lookback is how many blocks below the head are rescanned each cycle.
	Lookback uint64
	// Confirmations is subtracted from the head before scanning.
	Confirmations uint64
}

// Scanner owns the cursor of one (chain, kind) pair.
type Scanner struct {
	src   EventSource
	store CursorStore
	kind  chain.Kind
	opts  Options
	log   *slog.Logger
}

// New builds a scanner for kind events on src.
func New(src EventSource, store CursorStore, kind chain.Kind, opts Options, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		src:   src,
		store: store,
		kind:  kind,
		opts:  opts,
		log:   log.With("component", "scanner", "chain", src.Name(), "kind", string(kind)),
	}
}

func (s *Scanner) Kind() chain.Kind { return s.kind }
func (s *Scanner) Chain() string    { return s.src.Name() }

// Plan computes the window for head given the stored cursor.
func Plan(head uint64, cursor uint64, hasCursor bool, lookback uint64) Window {
	to := head
	from := uint64(0)
	if to > lookback {
		from = to - lookback
	}
	if hasCursor {
		if cursor >= to {
			return Window{From: to, To: to, Empty: true}
		}
		if from <= cursor {
			from = cursor + 1
		}
	}
	return Window{From: from, To: to}
}

// Scan reads the next window of events. The cursor advances to the window's
// upper bound only after the read succeeds.
func (s *Scanner) Scan(ctx context.Context) (Window, []chain.Event, error) {
	name := s.src.Name()
	cursor, hasCursor, err := s.store.GetCursor(ctx, name, string(s.kind))
	if err != nil {
		return Window{Empty: true}, nil, fmt.Errorf("load cursor: %w", err)
	}

	height, err := s.src.CurrentHeight(ctx)
	if err != nil {
		return Window{Empty: true}, nil, fmt.Errorf("current height: %w", err)
	}
	if s.opts.Confirmations > height {
		s.log.Debug("head below confirmation depth", "height", height)
		return Window{Empty: true}, nil, nil
	}
	head := height - s.opts.Confirmations

	w := Plan(head, cursor, hasCursor, s.opts.Lookback)
	if w.Empty {
		s.log.Debug("nothing to scan", "cursor", cursor, "head", head)
		return w, nil, nil
	}
	if hasCursor && cursor+1 < w.From {
		s.log.Warn("blocks skipped by lookback window", "cursor", cursor, "from", w.From, "missed", w.From-cursor-1)
	}

	events, err := s.src.ReadEvents(ctx, s.kind, w.From, w.To)
	if err != nil {
		return w, nil, fmt.Errorf("read events %s: %w", w, err)
	}
	if err := s.store.AdvanceCursor(ctx, name, string(s.kind), w.To); err != nil {
		return w, nil, fmt.Errorf("advance cursor: %w", err)
	}
	s.log.Info("scanned range", "from", w.From, "to", w.To, "events", len(events))
	return w, events, nil
}

// ScanRange reads [from, to] in spans of at most MaxReadSpan blocks without
// touching the cursor. It serves replays of blocks the lookback window no
// longer reaches. to must not pass the confirmed head.
func (s *Scanner) ScanRange(ctx context.Context, from, to uint64) ([]chain.Event, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d,%d]", from, to)
	}
	height, err := s.src.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("current height: %w", err)
	}
	if s.opts.Confirmations > height || to > height-s.opts.Confirmations {
		return nil, fmt.Errorf("range end %d is past the confirmed head (height %d, confirmations %d)", to, height, s.opts.Confirmations)
	}

	var events []chain.Event
	for start := from; ; {
		end := to
		if to-start >= MaxReadSpan {
			end = start + MaxReadSpan - 1
		}
		batch, err := s.src.ReadEvents(ctx, s.kind, start, end)
		if err != nil {
			return nil, fmt.Errorf("read events %s: %w", Window{From: start, To: end}, err)
		}
		events = append(events, batch...)
		if end == to {
			break
		}
		start = end + 1
	}
	s.log.Info("replayed range", "from", from, "to", to, "events", len(events))
	return events, nil
}
