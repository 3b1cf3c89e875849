package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/retry"
	"github.com/portfolio-rebalancer/internal/storage"
	"github.com/portfolio-rebalancer/internal/types"
)

// ExecutionService coordinates the execution lifecycle of a rebalance plan:
// building signable instructions, confirming submitted signatures, and
// finalizing or aborting the plan
type ExecutionService struct {
	plans    PlanStore
	quoter   SwapQuoter
	statuses TransactionStatusChecker
	txLog    TransactionLogStore
	confirm  *retry.Config
}

// NewExecutionService creates a new execution service. txLog may be nil when
// no analytical log sink is configured; logging is best effort either way.
func NewExecutionService(
	plans PlanStore,
	quoter SwapQuoter,
	statuses TransactionStatusChecker,
	txLog TransactionLogStore,
	confirmMaxAttempts int,
	confirmInitialDelay time.Duration,
) *ExecutionService {
	confirm := retry.DefaultConfig()
	if confirmMaxAttempts > 0 {
		confirm.MaxAttempts = confirmMaxAttempts
	}
	if confirmInitialDelay > 0 {
		confirm.InitialDelay = confirmInitialDelay
	}
	return &ExecutionService{
		plans:    plans,
		quoter:   quoter,
		statuses: statuses,
		txLog:    txLog,
		confirm:  confirm,
	}
}

// PreparedSwap pairs a plan swap with the unsigned instruction set the user
// must sign and submit
type PreparedSwap struct {
	Swap         models.SwapAction `json:"swap"`
	Instructions json.RawMessage   `json:"instructions"`
}

// PreparedExecution is the signable form of a pending plan
type PreparedExecution struct {
	Plan  *models.RebalancePlan `json:"plan"`
	Swaps []PreparedSwap        `json:"swaps"`
}

// PrepareExecution builds unsigned swap instructions for every swap in a
// pending plan. The stored quote payloads are re-submitted verbatim; an
// instruction build failure for any swap fails the whole operation so the
// caller never receives a partially signable plan.
func (s *ExecutionService) PrepareExecution(ctx context.Context, planID string) (*PreparedExecution, error) {
	plan, err := s.loadPendingPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Expired(time.Now()) {
		return nil, errors.NewQuoteExpiredError(planID)
	}

	prepared := &PreparedExecution{
		Plan:  plan,
		Swaps: make([]PreparedSwap, 0, len(plan.Swaps)),
	}

	for i := range plan.Swaps {
		swap := plan.Swaps[i]
		if swap.Signature != nil {
			continue
		}

		instructions, err := s.quoter.BuildSwapInstructions(ctx, swap.QuotePayload, plan.PublicKey)
		if err != nil {
			return nil, errors.NewInstructionBuildError(
				fmt.Errorf("swap %s -> %s: %w", swap.FromSymbol, swap.ToSymbol, err))
		}

		prepared.Swaps = append(prepared.Swaps, PreparedSwap{
			Swap:         swap,
			Instructions: instructions,
		})
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"planId": planID,
		"swaps":  len(prepared.Swaps),
	}).Info("Prepared plan for execution")

	return prepared, nil
}

// ConfirmResult reports the outcome of a swap confirmation
type ConfirmResult struct {
	Plan           *models.RebalancePlan `json:"plan"`
	SwapsRemaining int                   `json:"swapsRemaining"`
}

// ConfirmSwap polls the chain for a submitted signature and records it
// against the plan's next unconfirmed swap. Re-confirming a signature the
// plan already holds is a no-op that returns the current plan state.
//
// When the signature never reaches a confirmed state within the polling
// window a confirmation timeout is returned and the plan stays pending, so
// the caller can retry confirmation or abort explicitly. When the last swap
// confirms the plan is finalized to executed.
func (s *ExecutionService) ConfirmSwap(ctx context.Context, planID, signature string) (*ConfirmResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"planId":    planID,
		"signature": signature,
	})

	plan, err := s.loadPendingPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	var status types.ConfirmationStatus
	result := retry.WithExponentialBackoff(ctx, s.confirm, func(ctx context.Context, attempt int) error {
		st, err := s.statuses.GetSignatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if !st.Success() {
			return fmt.Errorf("signature status %s", st)
		}
		status = st
		return nil
	})
	if !result.Success {
		s.logTransaction(ctx, plan.PublicKey, signature, types.LogStatusFailed,
			fmt.Sprintf("confirmation timed out after %d attempts", result.Attempts))
		return nil, errors.NewConfirmationTimeoutError(signature)
	}

	recorded, err := s.plans.ConfirmSwap(ctx, planID, signature)
	if err != nil {
		return nil, errors.NewDatabaseError("record swap confirmation", err)
	}
	if recorded {
		s.logTransaction(ctx, plan.PublicKey, signature, types.LogStatusSuccess, string(status))
	} else {
		logger.Debug("Signature already recorded, treating as confirmed")
	}

	remaining, err := s.plans.UnconfirmedCount(ctx, planID)
	if err != nil {
		return nil, errors.NewDatabaseError("count unconfirmed swaps", err)
	}
	if remaining == 0 {
		if _, err := s.FinalizePlan(ctx, planID); err != nil {
			return nil, err
		}
	}

	updated, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, errors.NewDatabaseError("reload plan", err)
	}

	logger.WithField("remaining", remaining).Info("Swap confirmed")

	return &ConfirmResult{Plan: updated, SwapsRemaining: remaining}, nil
}

// FinalizePlan transitions a fully confirmed pending plan to executed. The
// transition is a compare-and-set on status; a concurrent finalization losing
// the race is not an error.
func (s *ExecutionService) FinalizePlan(ctx context.Context, planID string) (bool, error) {
	transitioned, err := s.plans.TransitionStatus(ctx, planID, types.PlanStatusPending, types.PlanStatusExecuted)
	if err != nil {
		return false, errors.NewDatabaseError("finalize plan", err)
	}
	if transitioned {
		logging.FromContext(ctx).WithField("planId", planID).Info("Plan executed")
	}
	return transitioned, nil
}

// AbortPlan explicitly fails a pending plan. Aborting a plan that is not
// pending is a conflict.
func (s *ExecutionService) AbortPlan(ctx context.Context, planID string) (*models.RebalancePlan, error) {
	plan, err := s.loadPendingPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	transitioned, err := s.plans.TransitionStatus(ctx, planID, types.PlanStatusPending, types.PlanStatusFailed)
	if err != nil {
		return nil, errors.NewDatabaseError("abort plan", err)
	}
	if !transitioned {
		// Lost a race with a concurrent finalize or abort
		return nil, errors.NewPlanAlreadyFinalizedError(planID, plan.Status)
	}

	logging.FromContext(ctx).WithField("planId", planID).Info("Plan aborted")

	updated, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, errors.NewDatabaseError("reload plan", err)
	}
	return updated, nil
}

// loadPendingPlan fetches a plan and asserts it is still actionable
func (s *ExecutionService) loadPendingPlan(ctx context.Context, planID string) (*models.RebalancePlan, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		if stderrors.Is(err, storage.ErrPlanNotFound) {
			return nil, errors.NewPlanNotFoundError(planID)
		}
		return nil, errors.NewDatabaseError("load plan", err)
	}
	if plan.Status != types.PlanStatusPending {
		return nil, errors.NewPlanAlreadyFinalizedError(planID, plan.Status)
	}
	return plan, nil
}

// logTransaction appends to the analytical transaction log. Best effort; a
// sink failure never affects the confirmation outcome.
func (s *ExecutionService) logTransaction(ctx context.Context, publicKey, signature string, status types.TransactionLogStatus, details string) {
	if s.txLog == nil {
		return
	}
	entry := &models.TransactionLog{
		PublicKey: publicKey,
		Signature: signature,
		Type:      types.LogTypeRebalance,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	}
	if err := s.txLog.Insert(ctx, entry); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to append transaction log")
	}
}
