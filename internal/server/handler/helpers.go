package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON encodes v with status. Encoding failures become a bare 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps ledger sentinels to HTTP status codes. ok is false for
// errors that should be logged and hidden.
func statusFor(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccount),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidTransfer),
		errors.Is(err, domain.ErrUnsupportedAsset):
		return http.StatusBadRequest, true
	case errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrDuplicateTransfer),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrDivisionByZero), errors.Is(err, domain.ErrOverflow):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, true
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, true
	case errors.Is(err, domain.ErrContextDone), errors.Is(err, domain.ErrLockHeld):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

// writeDomainError answers with the status for err. Unknown errors are
// logged and reported as fallback.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	status, ok := statusFor(err)
	if !ok {
		logger.ErrorContext(r.Context(), fallback,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, rootMessage(err))
}

// rootMessage returns the text of the innermost sentinel so clients see
// "market expired" rather than the wrapped chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// parseListOpts reads limit and offset. limit defaults to 50 and is capped
// at 500.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	limit := defaultLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxLimit)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

func parseMarketID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	return id, err == nil
}

// parseAmount accepts a decimal or 0x-prefixed hex integer.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, domain.ErrInvalidAmount
	}
	v, err := uint256.FromDecimal(s)
	if err == nil {
		return v, nil
	}
	if v, err = uint256.FromHex(s); err == nil {
		return v, nil
	}
	return nil, domain.ErrInvalidAmount
}
