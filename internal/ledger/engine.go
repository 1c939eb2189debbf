// Package ledger implements the settlement core: market creation, stake
// accounting and the read-only settlement views. All state lives in an
// injected domain.KVStore and every mutation is committed as one atomic batch.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/amby/internal/domain"
)

const (
	lockKeyCreate      = "create"
	lockKeyMarketFmt   = "market:"
	lockKeyTransferFmt = "transfer:"
	lockPollInterval   = 25 * time.Millisecond
	defaultLockTTL     = 5 * time.Second

	// lockStripes bounds the local lock table. Markets and transfer ids that
	// share a stripe also share its mutex.
	lockStripes = 256
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock. Tests use it to pin arrival times.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLockManager wraps every mutation in a distributed lock so several
// processes can share one store.
func WithLockManager(lm domain.LockManager, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locks = lm
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithEventSink sets where committed mutations are announced.
func WithEventSink(sink domain.EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the parent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine serializes access to the ledger. Stakes on one market take the
// write lock of that market's stripe; views take its read lock. A stake that
// carries a transfer id also holds the stripe of that id while it checks and
// records it. Market creation and bootstrap share a single mutex that guards
// the id counter.
type Engine struct {
	kv      domain.KVStore
	markets *MarketStore
	stakes  *StakeLedger

	clock   func() time.Time
	locks   domain.LockManager
	lockTTL time.Duration
	sink    domain.EventSink
	logger  *slog.Logger

	createMu   sync.Mutex
	marketMu   [lockStripes]sync.RWMutex
	transferMu [lockStripes]sync.Mutex
}

// NewEngine creates an Engine over kv.
func NewEngine(kv domain.KVStore, opts ...Option) *Engine {
	e := &Engine{
		kv:      kv,
		markets: NewMarketStore(kv),
		stakes:  NewStakeLedger(kv),
		clock:   time.Now,
		lockTTL: defaultLockTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "ledger"))
	return e
}

// Markets exposes the underlying market record reader.
func (e *Engine) Markets() *MarketStore { return e.markets }

// Stakes exposes the underlying position reader.
func (e *Engine) Stakes() *StakeLedger { return e.stakes }

func (e *Engine) nowMillis() int64 {
	return e.clock().UnixMilli()
}

func (e *Engine) marketLock(id uint64) *sync.RWMutex {
	return &e.marketMu[id%lockStripes]
}

func (e *Engine) transferLock(id domain.TransferID) *sync.Mutex {
	return &e.transferMu[id[0]]
}

// exists reports whether id was ever allocated. Ids are gap-free from 1 and
// never removed, so the counter alone answers it.
func (e *Engine) exists(ctx context.Context, id uint64) error {
	count, err := e.markets.Count(ctx)
	if err != nil {
		return err
	}
	if id == 0 || id > count {
		return fmt.Errorf("ledger: market %d: %w", id, domain.ErrMarketNotFound)
	}
	return nil
}

// acquire takes the distributed lock for key, polling until it is free or
// ctx is done. Without a lock manager it returns a no-op release.
func (e *Engine) acquire(ctx context.Context, key string) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		unlock, err := e.locks.Acquire(ctx, key, e.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("ledger: acquire %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ledger: acquire %s: %w", key, domain.ErrContextDone)
		case <-ticker.C:
		}
	}
}

func marketLockKey(id uint64) string {
	return lockKeyMarketFmt + strconv.FormatUint(id, 10)
}

func transferLockKey(id domain.TransferID) string {
	return lockKeyTransferFmt + id.Hex()
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if e.sink == nil {
		return
	}
	ev.ID = uuid.NewString()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.clock().UTC()
	}
	e.sink.Emit(ctx, ev)
}
