package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/amby/internal/domain"
)

// TransferService turns inbound value transfers into stakes. It owns the
// checks the external ledger leaves to the receiver: the asset must be the
// configured one, the amount must be positive and the transfer must carry
// its transaction hash so redeliveries are recognised.
type TransferService struct {
	ledger Ledger
	asset  string
	logger *slog.Logger
}

// NewTransferService creates a TransferService that accepts asset only.
func NewTransferService(ledger Ledger, asset string, logger *slog.Logger) *TransferService {
	return &TransferService{
		ledger: ledger,
		asset:  strings.TrimSpace(asset),
		logger: logger.With(slog.String("component", "transfer_service")),
	}
}

// Asset returns the accepted asset symbol.
func (s *TransferService) Asset() string { return s.asset }

// HandleTransfer validates n and records the stake it carries.
func (s *TransferService) HandleTransfer(ctx context.Context, n domain.TransferNotification) (domain.StakeReceipt, error) {
	if !strings.EqualFold(strings.TrimSpace(n.Asset), s.asset) {
		return domain.StakeReceipt{}, fmt.Errorf("transfer_service: asset %q: %w", n.Asset, domain.ErrUnsupportedAsset)
	}
	if n.Amount.IsZero() {
		return domain.StakeReceipt{}, fmt.Errorf("transfer_service: zero amount: %w", domain.ErrInvalidAmount)
	}
	if n.TransferID == (domain.TransferID{}) {
		return domain.StakeReceipt{}, fmt.Errorf("transfer_service: missing transfer id: %w", domain.ErrInvalidTransfer)
	}

	receipt, err := s.ledger.RecordStake(ctx, domain.StakeRequest{
		MarketID:   n.MarketID,
		Payer:      n.Payer,
		Outcome:    n.Outcome,
		Amount:     n.Amount,
		TransferID: n.TransferID,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "transfer rejected",
			slog.String("transfer_id", n.TransferID.Hex()),
			slog.Uint64("market_id", n.MarketID),
			slog.String("payer", n.Payer.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.StakeReceipt{}, fmt.Errorf("transfer_service: %w", err)
	}
	return receipt, nil
}
