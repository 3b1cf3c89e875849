package models

import (
	"time"
)

// TokenHolding represents a token balance fetched from the chain.
// Holdings are transient; the valued PortfolioEntry is what persists.
type TokenHolding struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol"`
	Balance  float64 `json:"balance"`
	Decimals uint8   `json:"decimals"`
}

// PortfolioEntry represents one valued token position within a snapshot,
// persisted as a write-through cache keyed by (public_key, token_mint)
type PortfolioEntry struct {
	PublicKey   string    `json:"publicKey" db:"public_key"`
	TokenMint   string    `json:"tokenMint" db:"token_mint"`
	TokenSymbol string    `json:"tokenSymbol" db:"token_symbol"`
	Balance     float64   `json:"balance" db:"balance"`
	Decimals    uint8     `json:"decimals" db:"decimals"`
	PriceUSD    float64   `json:"priceUsd" db:"price_usd"`
	ValueUSD    float64   `json:"valueUsd" db:"value_usd"`
	Percentage  float64   `json:"percentage" db:"percentage"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// PortfolioSnapshot represents the full valued portfolio view for a wallet
// at a point in time. When TotalValueUSD is zero every entry percentage is
// zero; otherwise the percentages sum to 100 within floating tolerance.
type PortfolioSnapshot struct {
	PublicKey     string           `json:"publicKey"`
	AsOf          time.Time        `json:"asOf"`
	TotalValueUSD float64          `json:"totalValueUsd"`
	Entries       []PortfolioEntry `json:"entries"`
}

// Entry returns the snapshot entry for a token mint, or nil if absent
func (s *PortfolioSnapshot) Entry(mint string) *PortfolioEntry {
	for i := range s.Entries {
		if s.Entries[i].TokenMint == mint {
			return &s.Entries[i]
		}
	}
	return nil
}

// TargetAllocation represents a user-declared target percentage for one token,
// with a tolerance threshold before rebalancing triggers
type TargetAllocation struct {
	ID                  string    `json:"id" db:"id"`
	PublicKey           string    `json:"publicKey" db:"public_key"`
	TokenMint           string    `json:"tokenMint" db:"token_mint"`
	TokenSymbol         string    `json:"tokenSymbol" db:"token_symbol"`
	TargetPercentage    float64   `json:"targetPercentage" db:"target_percentage"`
	ThresholdPercentage float64   `json:"threshold" db:"threshold"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
}

// Deviation represents the difference between a token's current and target
// allocation. Derived, never persisted. Positive deviation = overweight,
// negative = underweight.
type Deviation struct {
	TokenMint           string  `json:"tokenMint"`
	TokenSymbol         string  `json:"tokenSymbol"`
	CurrentPercentage   float64 `json:"currentPercentage"`
	TargetPercentage    float64 `json:"targetPercentage"`
	ThresholdPercentage float64 `json:"threshold"`
	Deviation           float64 `json:"deviation"`
	NeedsRebalance      bool    `json:"needsRebalance"`
}
