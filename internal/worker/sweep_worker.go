// Package worker runs the background sweep that periodically checks every
// wallet with declared targets for threshold breaches.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/service"
)

// WalletLister enumerates wallets that have declared target allocations
type WalletLister interface {
	ListWithTargets(ctx context.Context) ([]string, error)
}

// Checker runs a deviation check for one wallet
type Checker interface {
	CheckRebalance(ctx context.Context, publicKey string) (*service.CheckResult, error)
}

// SweepResult summarizes one sweep cycle
type SweepResult struct {
	WalletsChecked int
	NeedsAttention []string
	Errors         int
	Duration       time.Duration
}

// SweepWorker periodically sweeps every wallet with targets and logs the
// ones whose portfolio drifted past a threshold. It only observes; plan
// creation stays an explicit user action.
type SweepWorker struct {
	wallets  WalletLister
	checker  Checker
	interval time.Duration

	running  bool
	sweeping bool
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}

	lastSweep  time.Time
	lastResult *SweepResult
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(wallets WalletLister, checker Checker, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		wallets:  wallets,
		checker:  checker,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	logging.WithField("interval", w.interval.String()).Info("Starting sweep worker")

	go w.sweepLoop(ctx)
	return nil
}

// Stop gracefully stops the sweep worker
func (w *SweepWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker is not running")
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		logging.Info("Sweep worker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *SweepWorker) sweepLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			result, err := w.Sweep(ctx)
			if err != nil {
				logging.WithError(err).Error("Sweep cycle failed")
				continue
			}
			if result == nil {
				// Previous cycle still in flight
				continue
			}
			w.mu.Lock()
			w.lastSweep = time.Now()
			w.lastResult = result
			w.mu.Unlock()
		}
	}
}

// Sweep runs one sweep cycle. Returns nil without error when a previous
// cycle is still in progress; overlapping sweeps are skipped, not queued.
// A failed check for one wallet is logged and never stops the sweep.
func (w *SweepWorker) Sweep(ctx context.Context) (*SweepResult, error) {
	w.mu.Lock()
	if w.sweeping {
		w.mu.Unlock()
		logging.Debug("Sweep already in progress, skipping cycle")
		return nil, nil
	}
	w.sweeping = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.sweeping = false
		w.mu.Unlock()
	}()

	start := time.Now()

	publicKeys, err := w.wallets.ListWithTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets with targets: %w", err)
	}

	result := &SweepResult{WalletsChecked: len(publicKeys)}

	for _, publicKey := range publicKeys {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-w.stopCh:
			return result, nil
		default:
		}

		check, err := w.checker.CheckRebalance(ctx, publicKey)
		if err != nil {
			result.Errors++
			logging.WithError(err).WithField("publicKey", publicKey).Warn("Sweep check failed for wallet")
			continue
		}

		if check.NeedsRebalance {
			result.NeedsAttention = append(result.NeedsAttention, publicKey)
			logging.WithFields(map[string]interface{}{
				"publicKey":     publicKey,
				"totalValueUsd": check.TotalValueUSD,
				"breaches":      breachedSymbols(check.Deviations),
			}).Info("Wallet needs rebalancing")
		}
	}

	result.Duration = time.Since(start)
	logging.WithFields(map[string]interface{}{
		"wallets":        result.WalletsChecked,
		"needsAttention": len(result.NeedsAttention),
		"errors":         result.Errors,
		"duration":       result.Duration.String(),
	}).Info("Sweep cycle complete")

	return result, nil
}

// Status reports the worker's last observed sweep
func (w *SweepWorker) Status() (running bool, lastSweep time.Time, lastResult *SweepResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running, w.lastSweep, w.lastResult
}

func breachedSymbols(deviations []models.Deviation) []string {
	var symbols []string
	for i := range deviations {
		if deviations[i].NeedsRebalance {
			symbols = append(symbols, deviations[i].TokenSymbol)
		}
	}
	return symbols
}
