// Package service implements the portfolio rebalancing core: snapshot
// building, deviation analysis, plan generation, and plan execution.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/portfolio-rebalancer/internal/adapter"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/types"
)

// Collaborator interfaces for dependency injection and testing

// BalanceSource fetches token balances for a wallet
type BalanceSource interface {
	GetTokenHoldings(ctx context.Context, publicKey string) ([]models.TokenHolding, error)
}

// PriceOracle resolves USD prices for token mints. A missing price resolves
// to 0 and never fails the batch.
type PriceOracle interface {
	GetPrices(ctx context.Context, mints []string) map[string]float64
}

// SwapQuoter fetches exchange quotes and builds unsigned swap instructions
type SwapQuoter interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*adapter.Quote, error)
	BuildSwapInstructions(ctx context.Context, quotePayload []byte, userPublicKey string) (json.RawMessage, error)
}

// TransactionStatusChecker reports the on-chain status of a signature
type TransactionStatusChecker interface {
	GetSignatureStatus(ctx context.Context, signature string) (types.ConfirmationStatus, error)
}

// Repository interfaces for dependency injection

// WalletStore persists connected wallets
type WalletStore interface {
	Upsert(ctx context.Context, publicKey string) (*models.Wallet, error)
	Exists(ctx context.Context, publicKey string) (bool, error)
	ListWithTargets(ctx context.Context) ([]string, error)
}

// PortfolioStore persists valued snapshot entries
type PortfolioStore interface {
	UpsertEntry(ctx context.Context, entry *models.PortfolioEntry) error
	DeleteStaleEntries(ctx context.Context, publicKey string, keepMints []string) error
	GetEntries(ctx context.Context, publicKey string) ([]models.PortfolioEntry, error)
}

// TargetStore persists target allocations
type TargetStore interface {
	ReplaceAll(ctx context.Context, publicKey string, targets []models.TargetAllocation) error
	GetByWallet(ctx context.Context, publicKey string) ([]models.TargetAllocation, error)
}

// PlanStore persists rebalance plans and their swaps
type PlanStore interface {
	Create(ctx context.Context, plan *models.RebalancePlan) error
	GetByID(ctx context.Context, planID string) (*models.RebalancePlan, error)
	ConfirmSwap(ctx context.Context, planID, signature string) (bool, error)
	UnconfirmedCount(ctx context.Context, planID string) (int, error)
	TransitionStatus(ctx context.Context, planID string, from, to types.PlanStatus) (bool, error)
	ListByWallet(ctx context.Context, publicKey string, limit int) ([]models.RebalancePlan, error)
}

// TransactionLogStore appends on-chain transaction outcomes
type TransactionLogStore interface {
	Insert(ctx context.Context, entry *models.TransactionLog) error
}

// PlanLocker provides the per-wallet plan creation lock
type PlanLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}
