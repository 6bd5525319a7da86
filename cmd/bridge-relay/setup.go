package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/credential"
	"github.com/devblac/bridge-relay/internal/guard"
	"github.com/devblac/bridge-relay/internal/logging"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/notify"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/devblac/bridge-relay/internal/scanner"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/devblac/bridge-relay/internal/submit"
	"github.com/devblac/bridge-relay/internal/translate"
	"github.com/ethereum/go-ethereum/common"
)

func newLogger() *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return logging.NewWithLevel(level)
}

// plan is everything derived from the config before touching the network.
type plan struct {
	cfg       *config.Config
	endpoints map[string]*chain.Endpoint
	filters   map[string][]relay.Predicate
	role      *[32]byte
}

// checkConfig runs the startup checks: ABIs load, the configured events and
// methods exist, filters compile and the required role parses.
func checkConfig(cfg *config.Config) (*plan, error) {
	src, dst := cfg.Chains[config.Source], cfg.Chains[config.Destination]
	p := &plan{cfg: cfg, endpoints: map[string]*chain.Endpoint{}, filters: map[string][]relay.Predicate{}}

	if cfg.Global.RequiredRole != "" {
		id, err := guard.RoleID(cfg.Global.RequiredRole)
		if err != nil {
			return nil, fmt.Errorf("required_role: %w", err)
		}
		p.role = &id
	}

	type side struct {
		name    string
		ch      config.Chain
		kind    chain.Kind
		event   string
		methods []string
	}
	for _, s := range []side{
		{config.Source, src, chain.KindLock, src.LockEvent, []string{src.ReleaseMethod}},
		{config.Destination, dst, chain.KindBurn, dst.BurnEvent, []string{dst.MintMethod}},
	} {
		iface, err := chain.LoadABI(s.ch.ABIPath)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", s.name, err)
		}
		methods := s.methods
		if p.role != nil {
			methods = append(methods, "hasRole")
		}
		for _, m := range methods {
			if err := chain.RequireMethod(iface, m); err != nil {
				return nil, fmt.Errorf("chain %s: %w", s.name, err)
			}
		}
		ep, err := chain.NewEndpoint(chain.EndpointOpts{
			Name:       s.name,
			ChainID:    s.ch.ChainID,
			RPCURL:     s.ch.RPCURL,
			Contract:   common.HexToAddress(s.ch.Contract),
			ABI:        iface,
			Credential: s.ch.Credential,
			Events:     map[chain.Kind]string{s.kind: s.event},
		})
		if err != nil {
			return nil, err
		}
		p.endpoints[s.name] = ep
	}

	for _, dir := range []string{config.SourceToDestination, config.DestinationToSource} {
		preds, err := relay.CompilePredicates(cfg.Filters[dir])
		if err != nil {
			return nil, fmt.Errorf("filters.%s: %w", dir, err)
		}
		p.filters[dir] = preds
	}
	return p, nil
}

// resolveSigners loads the credential of every chain. A loop signs with the
// credential of the chain it submits to.
func resolveSigners(p *plan) (map[string]*credential.Signer, error) {
	out := map[string]*credential.Signer{}
	for name, ep := range p.endpoints {
		s, err := credential.Resolve(ep.CredentialRef())
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

func clientOptions(g config.GlobalConfig, log *slog.Logger) []chain.Option {
	readDelay, readMax := g.Retry.Read.Delays()
	submitDelay, submitMax := g.Retry.Submit.Delays()
	return []chain.Option{
		chain.WithCallTimeout(g.CallBound()),
		chain.WithRetry(
			chain.RetryPolicy{Attempts: g.Retry.Read.Attempts, Delay: readDelay, MaxDelay: readMax},
			chain.RetryPolicy{Attempts: g.Retry.Submit.Attempts, Delay: submitDelay, MaxDelay: submitMax},
		),
		chain.WithLogger(log),
	}
}

func dialChains(ctx context.Context, p *plan, log *slog.Logger) (map[string]*chain.Client, error) {
	out := map[string]*chain.Client{}
	for name, ep := range p.endpoints {
		c, err := chain.Dial(ctx, ep, clientOptions(p.cfg.Global, log)...)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// loopDeps carries the runtime collaborators shared by both directions.
type loopDeps struct {
	store     storage.Store
	clients   map[string]*chain.Client
	signers   map[string]*credential.Signer
	notifiers map[string]notify.Sender
	metrics   *metrics.Metrics
	dryRun    bool
	log       *slog.Logger
}

func buildLoops(p *plan, d loopDeps) ([]*relay.Loop, error) {
	g := p.cfg.Global
	src, dst := p.cfg.Chains[config.Source], p.cfg.Chains[config.Destination]
	ceiling, err := g.GasCeiling()
	if err != nil {
		return nil, err
	}
	translator := translate.New(
		translate.Route{Target: config.Destination, Method: dst.MintMethod},
		translate.Route{Target: config.Source, Method: src.ReleaseMethod},
	)
	submitter := submit.New(submit.Options{
		GasPriceCeiling:     ceiling,
		GasLimitBufferPct:   g.GasLimitBufferPct,
		ConfirmationTimeout: g.ConfirmationWait(),
	}, d.log)
	scanOpts := scanner.Options{Lookback: g.Lookback, Confirmations: g.Confirmations}

	directions := []struct {
		name     string
		from, to string
		kind     chain.Kind
	}{
		{config.SourceToDestination, config.Source, config.Destination, chain.KindLock},
		{config.DestinationToSource, config.Destination, config.Source, chain.KindBurn},
	}
	var loops []*relay.Loop
	for _, dir := range directions {
		from, to := d.clients[dir.from], d.clients[dir.to]
		signer := d.signers[dir.to]
		if from == nil || to == nil || signer == nil {
			return nil, errors.New("both chains need a client and a signer")
		}
		var limiter *relay.TokenBucket
		if g.MaxSubmitsPerSecond > 0 {
			limiter = relay.NewTokenBucket(max(1, g.MaxSubmitsPerSecond), g.MaxSubmitsPerSecond)
		}
		log := d.log.With("component", "relay")
		loop, err := relay.NewLoop(relay.LoopConfig{
			Direction:  dir.name,
			Scanner:    scanner.New(from, d.store, dir.kind, scanOpts, d.log),
			Translator: translator,
			Target:     to,
			Signer:     signer,
			Submitter:  submitter,
			Ledger:     d.store,
			Filters:    p.filters[dir.name],
			Role:       p.role,
			Limiter:    limiter,
			Notifiers:  d.notifiers,
			Metrics:    d.metrics,
			DryRun:     d.dryRun,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		loops = append(loops, loop)
	}
	return loops, nil
}

// relayRuntime is a loaded config with its store, chain clients and loops.
type relayRuntime struct {
	cfg     *config.Config
	store   storage.Store
	clients map[string]*chain.Client
	signers map[string]*credential.Signer
	loops   []*relay.Loop
}

// startRelay loads the config, runs the startup checks, opens the store,
// dials both chains and builds the loops. The caller closes rt.store.
func startRelay(ctx context.Context, log *slog.Logger, mtr *metrics.Metrics, dryRun bool) (*relayRuntime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	p, err := checkConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("startup check: %w", err)
	}
	signers, err := resolveSigners(p)
	if err != nil {
		return nil, fmt.Errorf("startup check: %w", err)
	}
	notifiers, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	clients, err := dialChains(ctx, p, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	loops, err := buildLoops(p, loopDeps{
		store:     store,
		clients:   clients,
		signers:   signers,
		notifiers: notifiers,
		metrics:   mtr,
		dryRun:    dryRun,
		log:       log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &relayRuntime{cfg: cfg, store: store, clients: clients, signers: signers, loops: loops}, nil
}

// loop returns the loop relaying direction.
func (rt *relayRuntime) loop(direction string) (*relay.Loop, error) {
	for _, l := range rt.loops {
		if l.Direction() == direction {
			return l, nil
		}
	}
	return nil, fmt.Errorf("unknown direction %q (want %s or %s)", direction, config.SourceToDestination, config.DestinationToSource)
}
