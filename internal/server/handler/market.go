package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, creator domain.Account, title, description string, endTime int64) (uint64, error)
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (uint64, error)
	TotalValueLocked(ctx context.Context, id uint64) (*uint256.Int, error)
	TotalPoints(ctx context.Context, id uint64, outcome domain.Outcome) (*uint256.Int, error)
	PotentialReward(ctx context.Context, id uint64, outcome domain.Outcome, amount *uint256.Int) (*uint256.Int, error)
	Window(ctx context.Context, id uint64) (start, end int64, err error)
	Position(ctx context.Context, id uint64, account domain.Account) (domain.Position, bool, error)
}

// MarketHandler serves the market query surface and market creation.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger.With(slog.String("handler", "market"))}
}

type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   uint64           `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets pages through markets in id order.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list markets")
		return
	}
	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to count markets")
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: out, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

// Count returns the number of markets ever created.
// GET /api/markets/count
func (h *MarketHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to count markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

// GetMarket returns one market snapshot.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

type createMarketRequest struct {
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Description string `json:"description"`
	EndTime     int64  `json:"end_time"`
}

// CreateMarket opens a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creator, err := domain.ParseAccount(req.Creator)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid creator")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id, err := h.markets.CreateMarket(r.Context(), creator, req.Title, req.Description, req.EndTime)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to create market")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

// TotalValueLocked returns pool_yes + pool_no.
// GET /api/markets/{id}/tvl
func (h *MarketHandler) TotalValueLocked(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	tvl, err := h.markets.TotalValueLocked(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to compute tvl")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{MarketID: id, Value: decString(tvl)})
}

// TotalPoints returns the points on one outcome.
// GET /api/markets/{id}/points?outcome=yes
func (h *MarketHandler) TotalPoints(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	outcome, err := domain.ParseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid outcome")
		return
	}
	pts, err := h.markets.TotalPoints(r.Context(), id, outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read points")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{MarketID: id, Outcome: outcome.String(), Value: decString(pts)})
}

// PotentialReward estimates the payout of staking amount on outcome now.
// GET /api/markets/{id}/potential-reward?outcome=yes&amount=50
func (h *MarketHandler) PotentialReward(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	q := r.URL.Query()
	outcome, err := domain.ParseOutcome(q.Get("outcome"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid outcome")
		return
	}
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid amount")
		return
	}
	reward, err := h.markets.PotentialReward(r.Context(), id, outcome, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to compute reward")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{MarketID: id, Outcome: outcome.String(), Value: decString(reward)})
}

// Window returns the staking window in Unix milliseconds.
// GET /api/markets/{id}/window
func (h *MarketHandler) Window(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	start, end, err := h.markets.Window(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read window")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "start_time": start, "end_time": end})
}

// Position returns an account's points on both outcomes.
// GET /api/markets/{id}/positions/{account}
func (h *MarketHandler) Position(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	account, err := domain.ParseAccount(pathParam(r, "account"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "invalid account")
		return
	}
	pos, claimed, err := h.markets.Position(r.Context(), id, account)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read position")
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		MarketID:  id,
		Account:   account.Hex(),
		YesPoints: pos.YesPoints.Dec(),
		NoPoints:  pos.NoPoints.Dec(),
		Claimed:   claimed,
	})
}
