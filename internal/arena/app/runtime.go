// Package app wires the arena service: storage, scheduler, lease-gated tick
// loop, HTTP API and the live event feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/auth"
	"github.com/ichorlabs/rumble/internal/arena/betting/replayguard"
	"github.com/ichorlabs/rumble/internal/arena/event"
	"github.com/ichorlabs/rumble/internal/arena/lease"
	"github.com/ichorlabs/rumble/internal/arena/ledger"
	"github.com/ichorlabs/rumble/internal/arena/payout"
	"github.com/ichorlabs/rumble/internal/arena/queue"
	"github.com/ichorlabs/rumble/internal/arena/scheduler"
	"github.com/ichorlabs/rumble/internal/arena/storage/sqlite"
)

// Config is the arena service configuration, loaded from the environment.
type Config struct {
	HTTPAddr        string        `env:"ICHOR_ARENA_HTTP_ADDR" envDefault:":8080"`
	DBPath          string        `env:"ICHOR_ARENA_DB_PATH" envDefault:"arena.db"`
	Slots           int           `env:"ICHOR_ARENA_SLOTS" envDefault:"3"`
	FighterCount    int           `env:"ICHOR_ARENA_FIGHTERS_PER_RUMBLE" envDefault:"16"`
	TickInterval    time.Duration `env:"ICHOR_ARENA_TICK_INTERVAL" envDefault:"2s"`
	TickTimeout     time.Duration `env:"ICHOR_ARENA_TICK_TIMEOUT" envDefault:"10s"`
	BettingWindow   time.Duration `env:"ICHOR_ARENA_BETTING_WINDOW" envDefault:"90s"`
	MinBet          uint64        `env:"ICHOR_ARENA_MIN_BET_LAMPORTS"`
	MaxBet          uint64        `env:"ICHOR_ARENA_MAX_BET_LAMPORTS"`
	LeaseTTL        time.Duration `env:"ICHOR_ARENA_LEASE_TTL" envDefault:"30s"`
	LedgerURL       string        `env:"ICHOR_ARENA_LEDGER_URL"`
	ClaimsEnabled   bool          `env:"ICHOR_ARENA_CLAIMS_ENABLED" envDefault:"true"`
	RequireGrants   bool          `env:"ICHOR_ARENA_REQUIRE_GRANTS" envDefault:"false"`
	HealthStaleness time.Duration `env:"ICHOR_ARENA_HEALTH_STALENESS" envDefault:"15s"`
	FeedMaxConns    int           `env:"ICHOR_ARENA_FEED_MAX_CONNS" envDefault:"256"`
}

// Runtime is the assembled arena service.
type Runtime struct {
	cfg    Config
	store  *sqlite.Store
	hub    *event.Hub
	queue  *queue.Manager
	orch   *scheduler.Orchestrator
	coord  *lease.Coordinator
	claims *payout.ClaimPreparer
	ledger ledger.Client
	grants *auth.GrantConfig

	feedConns *connLimiter

	// lastOK is the unix-nano time of the last successful tick or
	// reconcile pass; /healthz reads it.
	lastOK atomic.Int64
}

// NewRuntime opens storage and wires every component. The caller owns Run.
func NewRuntime(cfg Config) (*Runtime, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open arena store: %w", err)
	}

	rt := &Runtime{
		cfg:   cfg,
		store: store,
		hub:   event.NewHub(),
		queue: queue.NewManager(),
		coord: lease.NewCoordinator(store, cfg.LeaseTTL),

		feedConns: newConnLimiter(cfg.FeedMaxConns),
	}

	var commitments scheduler.CommitmentSource
	if cfg.LedgerURL != "" {
		rt.ledger = ledger.NewHTTPClient(cfg.LedgerURL)
		commitments = scheduler.LedgerCommitments(rt.ledger)
	}

	guard := replayguard.NewFallback(store, replayguard.NewMemory())
	rt.orch = scheduler.New(scheduler.Config{
		Slots:         cfg.Slots,
		FighterCount:  cfg.FighterCount,
		BettingWindow: cfg.BettingWindow,
		MinBet:        cfg.MinBet,
		MaxBet:        cfg.MaxBet,
	}, rt.queue, store, guard, rt.hub, commitments)

	rt.claims = &payout.ClaimPreparer{Bets: store, Enabled: cfg.ClaimsEnabled}

	if cfg.RequireGrants {
		grants, err := auth.LoadGrantConfigFromEnv(nil)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("load wager grant config: %w", err)
		}
		rt.grants = &grants
	}
	return rt, nil
}

// Close releases the runtime's resources.
func (rt *Runtime) Close() error {
	return rt.store.Close()
}

// Run serves HTTP and drives the tick loop until ctx is cancelled. Shutdown
// is graceful: the in-flight tick finishes, the HTTP server drains, and the
// worker lease is released explicitly so another replica can take over
// without waiting out the TTL.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.ledger != nil {
		if err := rt.orch.Recover(ctx, rt.ledger); err != nil {
			// Recovery failure is not fatal; the tick loop retries.
			log.Printf("[ARENA] startup recovery failed: %v", err)
		}
	}

	server := &http.Server{
		Addr:    rt.cfg.HTTPAddr,
		Handler: rt.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[ARENA] listening on %s", rt.cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		rt.tickLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	<-tickDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ARENA] http shutdown: %v", err)
	}
	if err := rt.coord.Release(shutdownCtx); err != nil {
		log.Printf("[ARENA] release lease: %v", err)
	}
	return nil
}

// tickLoop runs fixed-interval ticks while this replica holds the worker
// lease. A replica without the lease performs reconciliation-only reads.
// Consecutive tick failures stretch the interval so a struggling dependency
// is not hammered at full cadence.
func (rt *Runtime) tickLoop(ctx context.Context) {
	failures := 0
	for {
		interval := rt.cfg.TickInterval
		if failures > 0 {
			backoff := interval << min(failures, 4)
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			interval = backoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		tickCtx, cancel := context.WithTimeout(ctx, rt.cfg.TickTimeout)
		err := rt.step(tickCtx)
		cancel()

		if err != nil {
			failures++
			log.Printf("[ARENA] tick failed (%d consecutive): %v", failures, err)
			continue
		}
		failures = 0
		rt.lastOK.Store(time.Now().UTC().UnixNano())
	}
}

// step acquires the lease and ticks, or reconciles when another replica
// drives the slots.
func (rt *Runtime) step(ctx context.Context) error {
	acquired, err := rt.coord.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		if rt.ledger == nil {
			return nil
		}
		return rt.orch.Recover(ctx, rt.ledger)
	}
	return rt.orch.Tick(ctx)
}

// Healthy reports whether the last successful tick or reconcile pass is
// fresh enough to serve.
func (rt *Runtime) Healthy() (time.Time, bool) {
	nanos := rt.lastOK.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	last := time.Unix(0, nanos).UTC()
	return last, time.Since(last) <= rt.cfg.HealthStaleness
}
