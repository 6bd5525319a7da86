package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/guard"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/notify"
	"github.com/devblac/bridge-relay/internal/scanner"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/devblac/bridge-relay/internal/submit"
	"github.com/devblac/bridge-relay/internal/translate"
	"github.com/ethereum/go-ethereum/common"
)

// State is the phase a Loop is in.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateTranslating
	StateGuarding
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateTranslating:
		return "translating"
	case StateGuarding:
		return "guarding"
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Terminal results of one event.
const (
	ResultRelayed = "relayed"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultDryRun  = "dry_run"
)

// Scanner yields the next window of source events, or an explicit range for
// replays.
type Scanner interface {
	Scan(ctx context.Context) (scanner.Window, []chain.Event, error)
	ScanRange(ctx context.Context, from, to uint64) ([]chain.Event, error)
	Chain() string
	Kind() chain.Kind
}

// Translator derives the target call for an event.
type Translator interface {
	Translate(ev chain.Event) (translate.Action, error)
}

// Submitter sends an action to the target chain.
type Submitter interface {
	Submit(ctx context.Context, client submit.Client, action translate.Action, signer submit.Signer) (chain.Result, error)
}

// Target is the chain receiving the relayed calls.
type Target interface {
	submit.Client
	guard.Caller
}

// Ledger records which source events have been handled.
type Ledger interface {
	Claim(ctx context.Context, rec storage.Record) (bool, error)
	Complete(ctx context.Context, key storage.Key, status storage.Status, relayTx, detail string) error
	Lookup(ctx context.Context, key storage.Key) (storage.Record, bool, error)
}

// LoopConfig carries the collaborators of one direction.
type LoopConfig struct {
	Direction  string
	Scanner    Scanner
	Translator Translator
	Target     Target
	Signer     submit.Signer
	Submitter  Submitter
	Ledger     Ledger
	// Filters must all pass for an event to be relayed.
	Filters []Predicate
	// Role, when set, must be held by the signer on the target contract.
	Role *[32]byte
	// Limiter bounds submissions; nil means unlimited.
	Limiter   *TokenBucket
	Notifiers map[string]notify.Sender
	Metrics   *metrics.Metrics
	DryRun    bool
	Logger    *slog.Logger
}

// Loop relays one direction: scan, translate, guard, submit.
type Loop struct {
	cfg     LoopConfig
	state   atomic.Int32
	nowFunc func() time.Time
	log     *slog.Logger
}

// Summary reports one RunOnce pass.
type Summary struct {
	Window  scanner.Window
	Events  int
	Relayed int
	Skipped int
	Failed  int
}

// NewLoop validates cfg and builds a loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Direction == "" {
		return nil, errors.New("direction required")
	}
	if cfg.Scanner == nil || cfg.Translator == nil || cfg.Target == nil || cfg.Submitter == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("loop %s: scanner, translator, target, submitter and ledger are required", cfg.Direction)
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("loop %s: signer required", cfg.Direction)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		cfg:     cfg,
		nowFunc: time.Now,
		log:     log.With("direction", cfg.Direction, "chain", cfg.Scanner.Chain(), "kind", string(cfg.Scanner.Kind())),
	}, nil
}

func (l *Loop) Direction() string { return l.cfg.Direction }
func (l *Loop) State() State      { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// RunOnce performs one poll cycle. A scan failure is returned with the cursor
// untouched; failures of individual events are logged, recorded and counted.
func (l *Loop) RunOnce(ctx context.Context) (Summary, error) {
	defer l.setState(StateIdle)

	l.setState(StateScanning)
	w, events, err := l.cfg.Scanner.Scan(ctx)
	if err != nil {
		l.cfg.Metrics.Error(l.cfg.Direction, "scan")
		return Summary{Window: w}, fmt.Errorf("%s scan: %w", l.cfg.Direction, err)
	}
	sum := Summary{Window: w, Events: len(events)}
	if !w.Empty {
		l.cfg.Metrics.BlocksScanned(l.cfg.Direction, w.To-w.From+1)
		l.cfg.Metrics.Cursor(l.cfg.Scanner.Chain(), string(l.cfg.Scanner.Kind()), w.To)
	}
	err = l.process(ctx, events, &sum)
	return sum, err
}

// Replay relays the events in [from, to] through the same steps as RunOnce
// without moving the cursor. Events already in the ledger are skipped, so a
// record must be forgotten before its event can be relayed again.
func (l *Loop) Replay(ctx context.Context, from, to uint64) (Summary, error) {
	defer l.setState(StateIdle)

	l.setState(StateScanning)
	w := scanner.Window{From: from, To: to}
	events, err := l.cfg.Scanner.ScanRange(ctx, from, to)
	if err != nil {
		l.cfg.Metrics.Error(l.cfg.Direction, "scan")
		return Summary{Window: w}, fmt.Errorf("%s replay %s: %w", l.cfg.Direction, w, err)
	}
	l.log.Info("replaying range", "from", from, "to", to, "events", len(events))
	sum := Summary{Window: w, Events: len(events)}
	err = l.process(ctx, events, &sum)
	return sum, err
}

// process handles events in order. When ctx ends mid-batch, the events not yet
// handled are logged and recorded as failed since the cursor is already past
// them.
func (l *Loop) process(ctx context.Context, events []chain.Event, sum *Summary) error {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			sum.Failed += l.abandon(ctx, events[i:])
			return err
		}
		result := l.handle(ctx, ev)
		l.cfg.Metrics.Event(l.cfg.Direction, result)
		switch result {
		case ResultRelayed:
			sum.Relayed++
		case ResultFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	return nil
}

const detailCancelled = "cancelled"

func (l *Loop) abandon(ctx context.Context, events []chain.Event) int {
	for _, ev := range events {
		key := storage.Key{Chain: ev.Chain, TxHash: ev.TxHash.Hex(), LogIndex: ev.LogIndex}
		log := l.log.With("tx", key.TxHash, "log_index", ev.LogIndex, "height", ev.Height)
		log.Warn("event not relayed", "reason", detailCancelled, "fields", ev.FieldString())
		l.cfg.Metrics.Event(l.cfg.Direction, ResultFailed)
		if l.cfg.DryRun {
			continue
		}
		claimed, err := l.claim(ctx, ev, key)
		if err != nil {
			l.cfg.Metrics.Error(l.cfg.Direction, "ledger")
			log.Error("ledger claim failed", "error", err)
			continue
		}
		if claimed {
			l.complete(ctx, log, key, storage.StatusFailed, "", detailCancelled)
		}
	}
	return len(events)
}

// ledgerContext bounds ledger writes and lets them outlive a cancelled cycle.
func ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (l *Loop) claim(ctx context.Context, ev chain.Event, key storage.Key) (bool, error) {
	wctx, cancel := ledgerContext(ctx)
	defer cancel()
	return l.cfg.Ledger.Claim(wctx, storage.Record{
		Key:       key,
		Kind:      string(ev.Kind),
		Height:    ev.Height,
		Direction: l.cfg.Direction,
	})
}

func (l *Loop) handle(ctx context.Context, ev chain.Event) string {
	key := storage.Key{Chain: ev.Chain, TxHash: ev.TxHash.Hex(), LogIndex: ev.LogIndex}
	log := l.log.With("tx", key.TxHash, "log_index", ev.LogIndex, "height", ev.Height)
	log.Info("detected event", "fields", ev.FieldString())

	pass, err := allPredicates(l.cfg.Filters, ev.Args())
	if err != nil || !pass {
		log.Info("event filtered", "error", err)
		return ResultSkipped
	}

	if l.cfg.DryRun {
		if rec, seen, err := l.cfg.Ledger.Lookup(ctx, key); err == nil && seen {
			log.Info("already processed", "status", string(rec.Status))
			return ResultSkipped
		}
	} else {
		claimed, err := l.claim(ctx, ev, key)
		if err != nil {
			l.cfg.Metrics.Error(l.cfg.Direction, "ledger")
			log.Error("ledger claim failed", "error", err)
			return ResultFailed
		}
		if !claimed {
			log.Info("already processed")
			return ResultSkipped
		}
	}

	l.setState(StateTranslating)
	action, err := l.cfg.Translator.Translate(ev)
	if err != nil {
		l.cfg.Metrics.Error(l.cfg.Direction, "translate")
		log.Error("translate failed", "error", err)
		l.complete(ctx, log, key, storage.StatusFailed, "", err.Error())
		l.notify(ctx, ev, action, storage.StatusFailed, "", err.Error())
		return ResultFailed
	}
	log = log.With("action", action.Describe(), "target", action.Target)

	l.setState(StateGuarding)
	if l.cfg.Role != nil {
		ok, err := guard.Authorize(ctx, l.cfg.Target, *l.cfg.Role, l.cfg.Signer.Address())
		if err != nil {
			l.cfg.Metrics.Error(l.cfg.Direction, "guard")
			status, result := storage.StatusFailed, ResultFailed
			if errors.Is(err, chain.ErrContractCall) {
				status, result = storage.StatusSkipped, ResultSkipped
			}
			log.Error("role check failed", "status", string(status), "error", err)
			l.complete(ctx, log, key, status, "", err.Error())
			l.notify(ctx, ev, action, status, "", err.Error())
			return result
		}
		if !ok {
			detail := fmt.Sprintf("signer %s lacks required role", l.cfg.Signer.Address().Hex())
			log.Warn("skipping action", "reason", detail)
			l.complete(ctx, log, key, storage.StatusSkipped, "", detail)
			l.notify(ctx, ev, action, storage.StatusSkipped, "", detail)
			return ResultSkipped
		}
	}

	if l.cfg.DryRun {
		log.Info("dry run: not submitting")
		return ResultDryRun
	}

	if err := l.waitForToken(ctx); err != nil {
		l.complete(ctx, log, key, storage.StatusFailed, "", err.Error())
		return ResultFailed
	}

	l.setState(StateSubmitting)
	res, err := l.cfg.Submitter.Submit(ctx, l.cfg.Target, action, l.cfg.Signer)
	status, detail := classify(res, err)
	relayTx := ""
	if res.TxHash != (common.Hash{}) {
		relayTx = res.TxHash.Hex()
	}
	l.cfg.Metrics.Submission(l.cfg.Direction, string(res.Outcome))
	l.complete(ctx, log, key, status, relayTx, detail)

	switch status {
	case storage.StatusConfirmed:
		log.Info("relayed", "outcome", string(res.Outcome), "relay_tx", relayTx, "block", res.BlockNumber)
		return ResultRelayed
	case storage.StatusSkipped:
		log.Warn("action skipped", "outcome", string(res.Outcome), "error", detail)
		l.notify(ctx, ev, action, status, relayTx, detail)
		return ResultSkipped
	}
	log.Error("relay failed", "outcome", string(res.Outcome), "relay_tx", relayTx, "status", string(status), "error", detail)
	l.cfg.Metrics.Error(l.cfg.Direction, "submit")
	l.notify(ctx, ev, action, status, relayTx, detail)
	return ResultFailed
}

// classify maps a submission onto a ledger status. A call or estimate that
// reverts skips the action; it will not succeed by retrying.
func classify(res chain.Result, err error) (storage.Status, string) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	switch res.Outcome {
	case chain.OutcomeConfirmedSuccess:
		return storage.StatusConfirmed, detail
	case chain.OutcomeConfirmedFailure:
		if detail == "" {
			detail = "transaction reverted"
		}
		return storage.StatusReverted, detail
	case chain.OutcomeTimedOut:
		if detail == "" {
			detail = "no receipt before confirmation timeout"
		}
		return storage.StatusTimedOut, detail
	}
	switch {
	case errors.Is(err, chain.ErrGasEstimation), errors.Is(err, chain.ErrContractCall):
		return storage.StatusSkipped, detail
	case errors.Is(err, chain.ErrRejected):
		return storage.StatusRejected, detail
	}
	return storage.StatusFailed, detail
}

func (l *Loop) complete(ctx context.Context, log *slog.Logger, key storage.Key, status storage.Status, relayTx, detail string) {
	if l.cfg.DryRun {
		return
	}
	wctx, cancel := ledgerContext(ctx)
	defer cancel()
	if err := l.cfg.Ledger.Complete(wctx, key, status, relayTx, detail); err != nil {
		l.cfg.Metrics.Error(l.cfg.Direction, "ledger")
		log.Error("ledger update failed", "status", string(status), "error", err)
	}
}

func (l *Loop) notify(ctx context.Context, ev chain.Event, action translate.Action, status storage.Status, relayTx, detail string) {
	if len(l.cfg.Notifiers) == 0 || l.cfg.DryRun {
		return
	}
	payload := notify.Payload{
		Direction: l.cfg.Direction,
		Chain:     ev.Chain,
		Kind:      string(ev.Kind),
		Height:    ev.Height,
		TxHash:    ev.TxHash.Hex(),
		LogIndex:  ev.LogIndex,
		Action:    action.Describe(),
		Outcome:   string(status),
		RelayTx:   relayTx,
		Detail:    detail,
		Args:      ev.Args(),
	}
	for id, s := range l.cfg.Notifiers {
		if err := s.Send(ctx, payload); err != nil {
			l.log.Warn("notify failed", "notify", id, "error", err)
		}
	}
}

func (l *Loop) waitForToken(ctx context.Context) error {
	if l.cfg.Limiter == nil {
		return nil
	}
	for !l.cfg.Limiter.Allow(l.nowFunc()) {
		wait := l.cfg.Limiter.Delay()
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
