package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/leverage"
)

// Bootstrap records the owner and initial meta values the first time the
// ledger starts. Calling it again with the same owner is a no-op; a
// different owner yields ErrAlreadyExists.
func (e *Engine) Bootstrap(ctx context.Context, owner domain.Account) error {
	e.createMu.Lock()
	defer e.createMu.Unlock()
	unlock, err := e.acquire(ctx, lockKeyCreate)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := e.markets.Owner(ctx)
	switch {
	case err == nil:
		if current != owner {
			return fmt.Errorf("ledger: bootstrap: owner %s: %w", current.Hex(), domain.ErrAlreadyExists)
		}
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	_, err = e.kv.Get(ctx, keyCount)
	haveCount := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("ledger: bootstrap: read count: %w", err)
	}

	if err := e.kv.Apply(ctx, e.markets.bootstrapWrites(owner, haveCount)); err != nil {
		return fmt.Errorf("ledger: bootstrap: %w", err)
	}
	e.logger.InfoContext(ctx, "owner set", slog.String("owner", owner.Hex()))

	acct := owner
	e.emit(ctx, domain.Event{Type: domain.EventOwnerSet, Account: &acct})
	return nil
}

// CreateMarket opens a market that accepts stakes from now until endTime
// (Unix milliseconds). The id is the next value of the persisted counter.
func (e *Engine) CreateMarket(ctx context.Context, creator domain.Account, title, description string, endTime int64) (uint64, error) {
	now := e.nowMillis()
	if endTime <= now {
		return 0, fmt.Errorf("ledger: create market: end %d not after now %d: %w", endTime, now, domain.ErrInvalidWindow)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()
	unlock, err := e.acquire(ctx, lockKeyCreate)
	if err != nil {
		return 0, err
	}
	defer unlock()

	count, err := e.markets.Count(ctx)
	if err != nil {
		return 0, err
	}
	id := count + 1

	info := domain.MarketInfo{
		Title:       title,
		Description: description,
		Creator:     creator,
		StartTime:   now,
		EndTime:     endTime,
	}
	writes, err := e.markets.createWrites(id, info)
	if err != nil {
		return 0, err
	}
	if err := e.kv.Apply(ctx, writes); err != nil {
		return 0, fmt.Errorf("ledger: create market %d: %w", id, err)
	}

	e.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", id),
		slog.String("title", title),
		slog.Time("end_time", time.UnixMilli(endTime).UTC()),
	)
	e.emit(ctx, domain.Event{Type: domain.EventMarketCreated, MarketID: id, Title: title, EndTime: endTime})
	return id, nil
}

// RecordStake credits a stake that arrived now. See RecordStakeAt.
func (e *Engine) RecordStake(ctx context.Context, req domain.StakeRequest) (domain.StakeReceipt, error) {
	return e.RecordStakeAt(ctx, req, e.nowMillis())
}

// RecordStakeAt credits req.Amount to req.Outcome of the market and awards
// the payer time-decayed points for arrivalTime. Checks run in a fixed order
// (outcome, existence, deadline, status, transfer id) and nothing is written
// unless all of them pass.
func (e *Engine) RecordStakeAt(ctx context.Context, req domain.StakeRequest, arrivalTime int64) (domain.StakeReceipt, error) {
	if !req.Outcome.Valid() {
		return domain.StakeReceipt{}, fmt.Errorf("ledger: stake: outcome %d: %w", uint8(req.Outcome), domain.ErrInvalidOutcome)
	}
	if err := e.exists(ctx, req.MarketID); err != nil {
		return domain.StakeReceipt{}, err
	}

	mu := e.marketLock(req.MarketID)
	mu.Lock()
	defer mu.Unlock()
	unlock, err := e.acquire(ctx, marketLockKey(req.MarketID))
	if err != nil {
		return domain.StakeReceipt{}, err
	}
	defer unlock()

	m, err := e.markets.Load(ctx, req.MarketID)
	if err != nil {
		return domain.StakeReceipt{}, err
	}
	if arrivalTime >= m.EndTime {
		return domain.StakeReceipt{}, fmt.Errorf("ledger: stake on market %d at %d: %w", m.ID, arrivalTime, domain.ErrMarketExpired)
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.StakeReceipt{}, fmt.Errorf("ledger: stake on market %d (%s): %w", m.ID, m.Status, domain.ErrMarketClosed)
	}

	lev, err := leverage.Multiplier(m.StartTime, m.EndTime, arrivalTime)
	if err != nil {
		return domain.StakeReceipt{}, err
	}
	points, err := leverage.Scale(&req.Amount, lev)
	if err != nil {
		return domain.StakeReceipt{}, err
	}

	var transferWrite []domain.KVWrite
	if req.TransferID != (domain.TransferID{}) {
		release, err := e.claimTransfer(ctx, req.TransferID)
		if err != nil {
			return domain.StakeReceipt{}, err
		}
		defer release()
		transferWrite = append(transferWrite, domain.KVWrite{Key: transferKey(req.TransferID), Value: encodeUint64(m.ID)})
	}

	writes, err := e.stakes.stakeWrites(ctx, m.ID, &m.MarketState, req, points)
	if err != nil {
		return domain.StakeReceipt{}, err
	}
	if err := e.kv.Apply(ctx, append(writes, transferWrite...)); err != nil {
		return domain.StakeReceipt{}, fmt.Errorf("ledger: stake on market %d: %w", m.ID, err)
	}

	receipt := domain.StakeReceipt{
		MarketID:    m.ID,
		Payer:       req.Payer,
		Outcome:     req.Outcome,
		Amount:      req.Amount,
		Points:      *points,
		Leverage:    lev,
		ArrivalTime: arrivalTime,
		TransferID:  req.TransferID,
	}
	e.logger.InfoContext(ctx, "stake recorded",
		slog.Uint64("market_id", m.ID),
		slog.String("payer", req.Payer.Hex()),
		slog.String("outcome", req.Outcome.String()),
		slog.String("amount", req.Amount.Dec()),
		slog.String("points", points.Dec()),
		slog.Uint64("leverage", lev),
	)

	payer := req.Payer
	amount := req.Amount
	ev := domain.Event{
		Type:     domain.EventStakePlaced,
		MarketID: m.ID,
		Payer:    &payer,
		Outcome:  req.Outcome,
		Amount:   &amount,
	}
	if req.TransferID != (domain.TransferID{}) {
		tx := req.TransferID
		ev.TransferID = &tx
	}
	e.emit(ctx, ev)
	return receipt, nil
}

// claimTransfer takes the locks for transfer id and fails with
// ErrDuplicateTransfer when a stake already recorded it. The returned release
// must run after the batch that writes the marker is applied.
func (e *Engine) claimTransfer(ctx context.Context, id domain.TransferID) (func(), error) {
	mu := e.transferLock(id)
	mu.Lock()
	unlock, err := e.acquire(ctx, transferLockKey(id))
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	release := func() {
		unlock()
		mu.Unlock()
	}

	raw, err := e.kv.Get(ctx, transferKey(id))
	switch {
	case err == nil:
		release()
		prior, _ := decodeUint64(raw)
		return nil, fmt.Errorf("ledger: transfer %s already staked on market %d: %w", id.Hex(), prior, domain.ErrDuplicateTransfer)
	case !errors.Is(err, domain.ErrNotFound):
		release()
		return nil, fmt.Errorf("ledger: read transfer marker: %w", err)
	}
	return release, nil
}
