package models

import (
	"time"

	"github.com/portfolio-rebalancer/internal/types"
)

// RebalancePlan represents an ordered set of swaps that moves a portfolio
// back toward its target allocation. Immutable once created except for
// status transitions (pending -> executed, pending -> failed).
type RebalancePlan struct {
	ID                string           `json:"id" db:"id"`
	PublicKey         string           `json:"publicKey" db:"public_key"`
	Status            types.PlanStatus `json:"status" db:"status"`
	TotalValueUSD     float64          `json:"totalValueUsd" db:"total_value_usd"`
	EstimatedSlippage float64          `json:"estimatedSlippage" db:"estimated_slippage"`
	Swaps             []SwapAction     `json:"swaps"`
	CreatedAt         time.Time        `json:"createdAt" db:"created_at"`
	ExpiresAt         time.Time        `json:"expiresAt" db:"expires_at"`
}

// Expired reports whether the plan's stored quotes are past their validity
// window at the given time.
func (p *RebalancePlan) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// AllSwapsConfirmed reports whether every swap in the plan carries a
// confirmed signature. A plan with zero swaps counts as fully confirmed.
func (p *RebalancePlan) AllSwapsConfirmed() bool {
	for i := range p.Swaps {
		if p.Swaps[i].Signature == nil {
			return false
		}
	}
	return true
}

// SwapAction represents one pairwise swap within a rebalance plan. Amounts
// are in human units; QuotePayload holds the opaque quoter response that is
// re-submitted at execution time to build fresh instructions.
type SwapAction struct {
	ID             string     `json:"id" db:"id"`
	PlanID         string     `json:"planId" db:"plan_id"`
	FromMint       string     `json:"fromMint" db:"from_mint"`
	FromSymbol     string     `json:"fromSymbol" db:"from_symbol"`
	ToMint         string     `json:"toMint" db:"to_mint"`
	ToSymbol       string     `json:"toSymbol" db:"to_symbol"`
	FromAmount     float64    `json:"fromAmount" db:"from_amount"`
	ToAmount       float64    `json:"toAmount" db:"to_amount"`
	PriceImpactPct float64    `json:"priceImpactPct" db:"price_impact_pct"`
	QuotePayload   []byte     `json:"-" db:"quote_payload"`
	Signature      *string    `json:"signature,omitempty" db:"signature"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty" db:"confirmed_at"`
}

// TransactionLog represents one append-only record of a confirmed or failed
// on-chain transaction, stored in ClickHouse
type TransactionLog struct {
	PublicKey string                     `json:"publicKey"`
	Signature string                     `json:"signature"`
	Type      types.TransactionLogType   `json:"type"`
	Status    types.TransactionLogStatus `json:"status"`
	Details   string                     `json:"details"`
	Timestamp time.Time                  `json:"timestamp"`
}
