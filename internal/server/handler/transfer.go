package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/crypto"
	"github.com/alanyoungcy/amby/internal/domain"
)

const maxBodyBytes = 64 << 10

// TransferService records stakes carried by transfer notifications.
type TransferService interface {
	HandleTransfer(ctx context.Context, n domain.TransferNotification) (domain.StakeReceipt, error)
}

// SignatureVerifier authenticates a raw notification body.
type SignatureVerifier interface {
	Verify(timestamp, signature string, body []byte) error
}

// TransferHandler accepts inbound transfer notifications.
type TransferHandler struct {
	transfers TransferService
	verifier  SignatureVerifier
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler. verifier may be nil.
func NewTransferHandler(transfers TransferService, verifier SignatureVerifier, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, verifier: verifier, logger: logger.With(slog.String("handler", "transfer"))}
}

// transferRequest is the wire form of a notification. tx_hash identifies the
// source transaction. amount may be a JSON number or a decimal/hex string.
type transferRequest struct {
	TxHash  string       `json:"tx_hash"`
	Payer   string       `json:"payer"`
	Asset   string       `json:"asset"`
	Amount  *uint256.Int `json:"amount"`
	Payload struct {
		MarketID uint64 `json:"market_id"`
		Outcome  int64  `json:"outcome"`
	} `json:"payload"`
}

func (req transferRequest) toDomain() (domain.TransferNotification, error) {
	if o := req.Payload.Outcome; o != int64(domain.OutcomeYes) && o != int64(domain.OutcomeNo) {
		return domain.TransferNotification{}, fmt.Errorf("outcome %d: %w", o, domain.ErrInvalidOutcome)
	}
	txID, err := domain.ParseTransferID(req.TxHash)
	if err != nil {
		return domain.TransferNotification{}, err
	}
	payer, err := domain.ParseAccount(req.Payer)
	if err != nil {
		return domain.TransferNotification{}, err
	}
	if req.Amount == nil {
		return domain.TransferNotification{}, domain.ErrInvalidAmount
	}
	return domain.TransferNotification{
		TransferID: txID,
		Payer:      payer,
		Asset:      req.Asset,
		Amount:     *req.Amount,
		MarketID:   req.Payload.MarketID,
		Outcome:    domain.Outcome(req.Payload.Outcome),
	}, nil
}

// Receive validates and applies a transfer notification.
// POST /api/transfers
func (h *TransferHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if h.verifier != nil {
		err := h.verifier.Verify(r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature), body)
		if err != nil {
			h.logger.WarnContext(r.Context(), "transfer signature rejected",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var req transferRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer payload")
		return
	}
	n, err := req.toDomain()
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid transfer payload")
		return
	}

	receipt, err := h.transfers.HandleTransfer(r.Context(), n)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to record stake")
		return
	}
	writeJSON(w, http.StatusAccepted, toReceiptResponse(receipt))
}
