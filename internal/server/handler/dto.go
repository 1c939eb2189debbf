package handler

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// Big integers are rendered as decimal strings so JavaScript clients do not
// lose precision.

type marketResponse struct {
	ID             uint64 `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Creator        string `json:"creator"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time"`
	Status         string `json:"status"`
	PoolYes        string `json:"pool_yes"`
	PoolNo         string `json:"pool_no"`
	TotalYesPoints string `json:"total_yes_points"`
	TotalNoPoints  string `json:"total_no_points"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		ID:             m.ID,
		Title:          m.Title,
		Description:    m.Description,
		Creator:        m.Creator.Hex(),
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		Status:         m.Status.String(),
		PoolYes:        m.PoolYes.Dec(),
		PoolNo:         m.PoolNo.Dec(),
		TotalYesPoints: m.TotalYesPoints.Dec(),
		TotalNoPoints:  m.TotalNoPoints.Dec(),
	}
}

type positionResponse struct {
	MarketID  uint64 `json:"market_id"`
	Account   string `json:"account"`
	YesPoints string `json:"yes_points"`
	NoPoints  string `json:"no_points"`
	Claimed   bool   `json:"claimed"`
}

type receiptResponse struct {
	MarketID    uint64 `json:"market_id"`
	Payer       string `json:"payer"`
	Outcome     string `json:"outcome"`
	Amount      string `json:"amount"`
	Points      string `json:"points"`
	Leverage    uint64 `json:"leverage"`
	ArrivalTime int64  `json:"arrival_time"`
	TransferID  string `json:"transfer_id,omitempty"`
}

func toReceiptResponse(r domain.StakeReceipt) receiptResponse {
	return receiptResponse{
		MarketID:    r.MarketID,
		Payer:       r.Payer.Hex(),
		Outcome:     r.Outcome.String(),
		Amount:      r.Amount.Dec(),
		Points:      r.Points.Dec(),
		Leverage:    r.Leverage,
		ArrivalTime: r.ArrivalTime,
		TransferID:  transferIDString(r.TransferID),
	}
}

func transferIDString(id domain.TransferID) string {
	if id == (domain.TransferID{}) {
		return ""
	}
	return id.Hex()
}

type valueResponse struct {
	MarketID uint64 `json:"market_id"`
	Outcome  string `json:"outcome,omitempty"`
	Value    string `json:"value"`
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
