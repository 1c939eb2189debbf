package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
	ErrAlreadyExists = errors.New("already exists")

	// Settlement core preconditions.
	ErrInvalidWindow    = errors.New("invalid market window")
	ErrMarketNotFound   = errors.New("market not found")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrMarketExpired    = errors.New("market expired")
	ErrMarketClosed     = errors.New("market closed")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAccount   = errors.New("invalid account")

	// Transfer notifications.
	ErrInvalidTransfer   = errors.New("invalid transfer id")
	ErrDuplicateTransfer = errors.New("duplicate transfer")
)
