package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/storage"
)

// satisfiedEpsilon guards the planner against float noise: an undersupplied
// token within this deviation is treated as already satisfied
const satisfiedEpsilon = 0.01

// defaultOutputDecimals is assumed for quote outputs whose token is not in
// the current snapshot (a target the wallet does not hold yet)
const defaultOutputDecimals = 9

// RebalanceService computes deviation checks and generates rebalance plans
type RebalanceService struct {
	snapshots *SnapshotService
	targets   TargetStore
	plans     PlanStore
	quoter    SwapQuoter
	locker    PlanLocker

	quoteValidity time.Duration
	lockTTL       time.Duration

	// Fallback serialization when no distributed locker is configured.
	// Plan creation mutates working deviation state across multiple quote
	// round trips; concurrent runs for one wallet would corrupt it.
	mu        sync.Mutex
	localLock map[string]bool
}

// NewRebalanceService creates a new rebalance service. The locker may be nil,
// in which case plan creation is serialized per wallet in-process only.
func NewRebalanceService(
	snapshots *SnapshotService,
	targets TargetStore,
	plans PlanStore,
	quoter SwapQuoter,
	locker PlanLocker,
	quoteValidity time.Duration,
	lockTTL time.Duration,
) *RebalanceService {
	return &RebalanceService{
		snapshots:     snapshots,
		targets:       targets,
		plans:         plans,
		quoter:        quoter,
		locker:        locker,
		quoteValidity: quoteValidity,
		lockTTL:       lockTTL,
		localLock:     make(map[string]bool),
	}
}

// CheckResult is the outcome of a rebalance check
type CheckResult struct {
	NeedsRebalance   bool                      `json:"needsRebalance"`
	Deviations       []models.Deviation        `json:"deviations"`
	CurrentPortfolio *models.PortfolioSnapshot `json:"currentPortfolio"`
	TotalValueUSD    float64                   `json:"totalValueUsd"`
}

// CheckRebalance builds a fresh snapshot and reports whether any target's
// threshold is breached
func (s *RebalanceService) CheckRebalance(ctx context.Context, publicKey string) (*CheckResult, error) {
	snapshot, err := s.snapshots.BuildSnapshot(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	targets, err := s.targets.GetByWallet(ctx, publicKey)
	if err != nil {
		return nil, errors.NewDatabaseError("load target allocations", err)
	}

	analysis := AnalyzeDeviations(snapshot, targets)

	return &CheckResult{
		NeedsRebalance:   analysis.NeedsRebalance,
		Deviations:       analysis.Deviations,
		CurrentPortfolio: snapshot,
		TotalValueUSD:    snapshot.TotalValueUSD,
	}, nil
}

// PlanResult is the outcome of a plan creation attempt. When the portfolio
// is already within tolerance, NeedsRebalance is false and Plan is nil.
type PlanResult struct {
	NeedsRebalance bool                  `json:"needsRebalance"`
	Plan           *models.RebalancePlan `json:"plan,omitempty"`
}

// CreatePlan generates and persists a rebalance plan for a wallet.
//
// The planner is a greedy single-pass allocator: it walks oversupplied
// tokens in target order and, for each, drains excess value into
// undersupplied tokens in target order, re-reading the live running
// deviation after every recorded swap. One oversupplied token can be split
// across several destinations within the pass and vice versa. This bounds
// plan size by oversupply x undersupply without a flow solver; thresholds
// absorb residual imbalance.
//
// A quote failure for one pair skips that pair and never aborts the plan.
// A plan whose every quote attempt failed is still persisted and returned
// with an empty swap list.
func (s *RebalanceService) CreatePlan(ctx context.Context, publicKey string) (*PlanResult, error) {
	logger := logging.FromContext(ctx)

	unlock, err := s.lockWallet(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	check, err := s.CheckRebalance(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if !check.NeedsRebalance {
		return &PlanResult{NeedsRebalance: false}, nil
	}

	snapshot := check.CurrentPortfolio
	totalValue := snapshot.TotalValueUSD

	// Work on an owned copy so the analyzer output stays untouched
	working := make([]models.Deviation, len(check.Deviations))
	copy(working, check.Deviations)

	var oversupply, undersupply []*models.Deviation
	for i := range working {
		d := &working[i]
		switch {
		case d.Deviation > d.ThresholdPercentage:
			oversupply = append(oversupply, d)
		case d.Deviation < -d.ThresholdPercentage:
			undersupply = append(undersupply, d)
		}
	}

	now := time.Now()
	plan := &models.RebalancePlan{
		PublicKey:     publicKey,
		TotalValueUSD: totalValue,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.quoteValidity),
	}

	for _, over := range oversupply {
		overEntry := snapshot.Entry(over.TokenMint)
		if overEntry == nil || overEntry.PriceUSD <= 0 {
			continue
		}

		// Excess is fixed at entry to the inner loop; the running
		// deviation only affects later oversupplied tokens
		excessValue := (over.Deviation / 100) * totalValue

		for _, under := range undersupply {
			if math.Abs(under.Deviation) < satisfiedEpsilon {
				continue
			}

			neededValue := (math.Abs(under.Deviation) / 100) * totalValue
			swapValue := math.Min(excessValue, neededValue)
			swapAmount := swapValue / overEntry.PriceUSD

			baseUnits := toBaseUnits(swapAmount, overEntry.Decimals)
			if baseUnits == 0 {
				continue
			}

			quote, err := s.quoter.GetQuote(ctx, over.TokenMint, under.TokenMint, baseUnits)
			if err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"from": over.TokenSymbol,
					"to":   under.TokenSymbol,
				}).Warn("Quote failed, skipping pair")
				continue
			}
			if quote == nil {
				logger.WithFields(map[string]interface{}{
					"from": over.TokenSymbol,
					"to":   under.TokenSymbol,
				}).Debug("No route for pair")
				continue
			}

			outDecimals := uint8(defaultOutputDecimals)
			if underEntry := snapshot.Entry(under.TokenMint); underEntry != nil {
				outDecimals = underEntry.Decimals
			}

			plan.Swaps = append(plan.Swaps, models.SwapAction{
				FromMint:       over.TokenMint,
				FromSymbol:     over.TokenSymbol,
				ToMint:         under.TokenMint,
				ToSymbol:       under.TokenSymbol,
				FromAmount:     swapAmount,
				ToAmount:       fromBaseUnits(quote.OutAmount, outDecimals),
				PriceImpactPct: quote.PriceImpactPct,
				QuotePayload:   quote.Raw,
			})

			delta := (swapValue / totalValue) * 100
			over.Deviation -= delta
			under.Deviation += delta
		}
	}

	plan.EstimatedSlippage = meanPriceImpact(plan.Swaps)

	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, errors.NewDatabaseError("persist rebalance plan", err)
	}

	logger.WithFields(map[string]interface{}{
		"publicKey": publicKey,
		"planId":    plan.ID,
		"swaps":     len(plan.Swaps),
	}).Info("Created rebalance plan")

	return &PlanResult{NeedsRebalance: true, Plan: plan}, nil
}

// lockWallet serializes plan creation per wallet, preferring the distributed
// locker when configured
func (s *RebalanceService) lockWallet(ctx context.Context, publicKey string) (func(), error) {
	if s.locker != nil {
		key := storage.PlanLockKey(publicKey)
		acquired, err := s.locker.SetNX(ctx, key, "1", s.lockTTL)
		if err != nil {
			return nil, errors.NewInternalError("failed to acquire plan lock", err)
		}
		if !acquired {
			return nil, errors.NewPlanInProgressError(publicKey)
		}
		return func() {
			_ = s.locker.Del(context.Background(), key) // nolint:errcheck // lock expires via TTL anyway
		}, nil
	}

	s.mu.Lock()
	if s.localLock[publicKey] {
		s.mu.Unlock()
		return nil, errors.NewPlanInProgressError(publicKey)
	}
	s.localLock[publicKey] = true
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.localLock, publicKey)
		s.mu.Unlock()
	}, nil
}

// toBaseUnits converts a human amount to the token's smallest unit, flooring
// to whole units. Decimal arithmetic avoids float drift corrupting the floor.
func toBaseUnits(amount float64, decimals uint8) uint64 {
	if amount <= 0 {
		return 0
	}
	units := decimal.NewFromFloat(amount).Shift(int32(decimals)).Floor()
	if !units.IsPositive() {
		return 0
	}
	return units.BigInt().Uint64()
}

// fromBaseUnits converts a smallest-unit amount back to human units
func fromBaseUnits(units uint64, decimals uint8) float64 {
	f, _ := decimal.NewFromUint64(units).Shift(-int32(decimals)).Float64() // nolint:errcheck
	return f
}

// meanPriceImpact is the arithmetic mean of the recorded swaps' price
// impact, defined as 0 when the plan recorded no swaps
func meanPriceImpact(swaps []models.SwapAction) float64 {
	if len(swaps) == 0 {
		return 0
	}
	var sum float64
	for i := range swaps {
		sum += swaps[i].PriceImpactPct
	}
	return sum / float64(len(swaps))
}
