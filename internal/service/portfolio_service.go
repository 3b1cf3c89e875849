package service

import (
	"context"
	"math"

	"github.com/portfolio-rebalancer/internal/adapter"
	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
)

// allocationSumTolerance is the float tolerance accepted when validating that
// target percentages sum to 100
const allocationSumTolerance = 0.01

// defaultThresholdPercentage applies to targets that do not declare their own
// rebalance threshold
const defaultThresholdPercentage = 5.0

// PortfolioService manages wallet connections and target allocations
type PortfolioService struct {
	wallets   WalletStore
	targets   TargetStore
	snapshots *SnapshotService
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(wallets WalletStore, targets TargetStore, snapshots *SnapshotService) *PortfolioService {
	return &PortfolioService{
		wallets:   wallets,
		targets:   targets,
		snapshots: snapshots,
	}
}

// ConnectWallet registers a wallet by public key and builds its initial
// snapshot. Reconnecting an already known wallet refreshes the snapshot
// rather than erroring.
func (s *PortfolioService) ConnectWallet(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error) {
	if !adapter.ValidatePublicKey(publicKey) {
		return nil, errors.NewInvalidPublicKeyError(publicKey)
	}

	if _, err := s.wallets.Upsert(ctx, publicKey); err != nil {
		return nil, errors.NewDatabaseError("upsert wallet", err)
	}

	snapshot, err := s.snapshots.BuildSnapshot(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"publicKey":     publicKey,
		"totalValueUsd": snapshot.TotalValueUSD,
	}).Info("Wallet connected")

	return snapshot, nil
}

// GetSnapshot builds a fresh snapshot for a known wallet
func (s *PortfolioService) GetSnapshot(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error) {
	if err := s.requireWallet(ctx, publicKey); err != nil {
		return nil, err
	}
	return s.snapshots.BuildSnapshot(ctx, publicKey)
}

// SetTargets validates and saves a wallet's target allocation set, replacing
// any previous set atomically. Percentages must sum to 100 within tolerance.
// Targets without a threshold get the default.
func (s *PortfolioService) SetTargets(ctx context.Context, publicKey string, targets []models.TargetAllocation) ([]models.TargetAllocation, error) {
	if err := s.requireWallet(ctx, publicKey); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.NewValidationError("at least one target allocation is required")
	}

	seen := make(map[string]bool, len(targets))
	var total float64
	for i := range targets {
		t := &targets[i]
		if t.TokenMint == "" {
			return nil, errors.NewValidationError("target token mint must not be empty")
		}
		if seen[t.TokenMint] {
			return nil, errors.NewValidationError("duplicate target token mint: " + t.TokenMint)
		}
		seen[t.TokenMint] = true

		if t.TargetPercentage <= 0 || t.TargetPercentage > 100 {
			return nil, errors.NewValidationError("target percentage must be in (0, 100]")
		}
		if t.ThresholdPercentage < 0 {
			return nil, errors.NewValidationError("threshold percentage must not be negative")
		}
		if t.ThresholdPercentage == 0 {
			t.ThresholdPercentage = defaultThresholdPercentage
		}
		if t.TokenSymbol == "" {
			t.TokenSymbol = adapter.SymbolForMint(t.TokenMint)
		}
		t.PublicKey = publicKey
		total += t.TargetPercentage
	}

	if math.Abs(total-100) > allocationSumTolerance {
		return nil, errors.NewAllocationSumError(total)
	}

	if err := s.targets.ReplaceAll(ctx, publicKey, targets); err != nil {
		return nil, errors.NewDatabaseError("replace target allocations", err)
	}

	saved, err := s.targets.GetByWallet(ctx, publicKey)
	if err != nil {
		return nil, errors.NewDatabaseError("load target allocations", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"publicKey": publicKey,
		"targets":   len(saved),
	}).Info("Target allocations saved")

	return saved, nil
}

// GetTargets returns a wallet's declared target allocations in declaration
// order
func (s *PortfolioService) GetTargets(ctx context.Context, publicKey string) ([]models.TargetAllocation, error) {
	if err := s.requireWallet(ctx, publicKey); err != nil {
		return nil, err
	}
	targets, err := s.targets.GetByWallet(ctx, publicKey)
	if err != nil {
		return nil, errors.NewDatabaseError("load target allocations", err)
	}
	return targets, nil
}

func (s *PortfolioService) requireWallet(ctx context.Context, publicKey string) error {
	if !adapter.ValidatePublicKey(publicKey) {
		return errors.NewInvalidPublicKeyError(publicKey)
	}
	exists, err := s.wallets.Exists(ctx, publicKey)
	if err != nil {
		return errors.NewDatabaseError("check wallet", err)
	}
	if !exists {
		return errors.NewWalletNotFoundError(publicKey)
	}
	return nil
}
