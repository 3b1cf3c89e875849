package service

import (
	"context"
	"time"

	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
)

// SnapshotService builds valued portfolio snapshots from live balances and
// prices, writing entries through to the persistence store
type SnapshotService struct {
	balances  BalanceSource
	prices    PriceOracle
	portfolio PortfolioStore
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(balances BalanceSource, prices PriceOracle, portfolio PortfolioStore) *SnapshotService {
	return &SnapshotService{
		balances:  balances,
		prices:    prices,
		portfolio: portfolio,
	}
}

// BuildSnapshot fetches live balances and prices for a wallet and returns
// the valued, percentage-weighted portfolio view.
//
// A balance fetch failure aborts the build. Individual price misses never
// do: the token is listed with price 0 and contributes nothing to the total.
// When the total value is zero every percentage is zero.
func (s *SnapshotService) BuildSnapshot(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error) {
	logger := logging.FromContext(ctx)

	holdings, err := s.balances.GetTokenHoldings(ctx, publicKey)
	if err != nil {
		return nil, errors.NewBalanceFetchError(publicKey, err)
	}

	mints := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.Balance <= 0 {
			continue
		}
		mints = append(mints, h.Mint)
	}

	prices := s.prices.GetPrices(ctx, mints)

	now := time.Now()
	snapshot := &models.PortfolioSnapshot{
		PublicKey: publicKey,
		AsOf:      now,
	}

	for _, h := range holdings {
		if h.Balance <= 0 {
			continue
		}
		priceUSD := prices[h.Mint]
		valueUSD := h.Balance * priceUSD
		snapshot.TotalValueUSD += valueUSD

		snapshot.Entries = append(snapshot.Entries, models.PortfolioEntry{
			PublicKey:   publicKey,
			TokenMint:   h.Mint,
			TokenSymbol: h.Symbol,
			Balance:     h.Balance,
			Decimals:    h.Decimals,
			PriceUSD:    priceUSD,
			ValueUSD:    valueUSD,
			UpdatedAt:   now,
		})
	}

	for i := range snapshot.Entries {
		if snapshot.TotalValueUSD > 0 {
			snapshot.Entries[i].Percentage = (snapshot.Entries[i].ValueUSD / snapshot.TotalValueUSD) * 100
		} else {
			snapshot.Entries[i].Percentage = 0
		}
	}

	// Write-through: the persisted entries mirror the latest snapshot but
	// the chain stays the source of truth. Persistence failures abort so
	// callers never see a snapshot the store does not reflect.
	for i := range snapshot.Entries {
		if err := s.portfolio.UpsertEntry(ctx, &snapshot.Entries[i]); err != nil {
			return nil, errors.NewDatabaseError("upsert portfolio entry", err)
		}
	}
	if err := s.portfolio.DeleteStaleEntries(ctx, publicKey, mints); err != nil {
		return nil, errors.NewDatabaseError("delete stale portfolio entries", err)
	}

	logger.WithFields(map[string]interface{}{
		"publicKey":     publicKey,
		"tokens":        len(snapshot.Entries),
		"totalValueUsd": snapshot.TotalValueUSD,
	}).Debug("Built portfolio snapshot")

	return snapshot, nil
}
