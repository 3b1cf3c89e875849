package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/types"
)

// ErrPlanNotFound is returned when a plan does not exist
var ErrPlanNotFound = errors.New("rebalance plan not found")

// PlanRepository handles rebalance plan and swap persistence
type PlanRepository struct {
	db *PostgresDB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *PostgresDB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create persists a plan and its swaps in one transaction.
// The plan is stored with status pending before being returned to callers.
func (r *PlanRepository) Create(ctx context.Context, plan *models.RebalancePlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	plan.Status = types.PlanStatusPending

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO rebalance_plans (
			id, public_key, status, total_value_usd, estimated_slippage,
			created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		plan.ID,
		plan.PublicKey,
		string(plan.Status),
		plan.TotalValueUSD,
		plan.EstimatedSlippage,
		plan.CreatedAt,
		plan.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}

	swapQuery := `
		INSERT INTO swap_actions (
			id, plan_id, from_mint, from_symbol, to_mint, to_symbol,
			from_amount, to_amount, price_impact_pct, quote_payload, position
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for i := range plan.Swaps {
		swap := &plan.Swaps[i]
		if swap.ID == "" {
			swap.ID = uuid.New().String()
		}
		swap.PlanID = plan.ID

		if _, err := tx.Exec(ctx, swapQuery,
			swap.ID,
			swap.PlanID,
			swap.FromMint,
			swap.FromSymbol,
			swap.ToMint,
			swap.ToSymbol,
			swap.FromAmount,
			swap.ToAmount,
			swap.PriceImpactPct,
			swap.QuotePayload,
			i,
		); err != nil {
			return fmt.Errorf("failed to insert swap action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}

	return nil
}

// GetByID retrieves a plan with its swaps in recorded order
func (r *PlanRepository) GetByID(ctx context.Context, planID string) (*models.RebalancePlan, error) {
	query := `
		SELECT id, public_key, status, total_value_usd, estimated_slippage,
		       created_at, expires_at
		FROM rebalance_plans
		WHERE id = $1
	`

	var plan models.RebalancePlan
	var status string
	err := r.db.Pool().QueryRow(ctx, query, planID).Scan(
		&plan.ID,
		&plan.PublicKey,
		&status,
		&plan.TotalValueUSD,
		&plan.EstimatedSlippage,
		&plan.CreatedAt,
		&plan.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plan.Status = types.PlanStatus(status)

	swaps, err := r.getSwaps(ctx, planID)
	if err != nil {
		return nil, err
	}
	plan.Swaps = swaps

	return &plan, nil
}

func (r *PlanRepository) getSwaps(ctx context.Context, planID string) ([]models.SwapAction, error) {
	query := `
		SELECT id, plan_id, from_mint, from_symbol, to_mint, to_symbol,
		       from_amount, to_amount, price_impact_pct, quote_payload,
		       signature, confirmed_at
		FROM swap_actions
		WHERE plan_id = $1
		ORDER BY position
	`

	rows, err := r.db.Pool().Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap actions: %w", err)
	}
	defer rows.Close()

	var swaps []models.SwapAction
	for rows.Next() {
		var swap models.SwapAction
		if err := rows.Scan(
			&swap.ID,
			&swap.PlanID,
			&swap.FromMint,
			&swap.FromSymbol,
			&swap.ToMint,
			&swap.ToSymbol,
			&swap.FromAmount,
			&swap.ToAmount,
			&swap.PriceImpactPct,
			&swap.QuotePayload,
			&swap.Signature,
			&swap.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan swap action: %w", err)
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

// ConfirmSwap records a confirmed signature against the first unconfirmed
// swap of a plan. Confirming the same signature twice is a no-op: the
// conditional update matches nothing once the signature is recorded.
// Returns whether a row was updated.
func (r *PlanRepository) ConfirmSwap(ctx context.Context, planID, signature string) (bool, error) {
	alreadyRecorded, err := r.signatureRecorded(ctx, planID, signature)
	if err != nil {
		return false, err
	}
	if alreadyRecorded {
		return false, nil
	}

	query := `
		UPDATE swap_actions
		SET signature = $2, confirmed_at = $3
		WHERE id = (
			SELECT id FROM swap_actions
			WHERE plan_id = $1 AND signature IS NULL
			ORDER BY position
			LIMIT 1
		)
	`

	tag, err := r.db.Pool().Exec(ctx, query, planID, signature, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to confirm swap: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PlanRepository) signatureRecorded(ctx context.Context, planID, signature string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM swap_actions WHERE plan_id = $1 AND signature = $2)`,
		planID, signature,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check signature: %w", err)
	}
	return exists, nil
}

// UnconfirmedCount returns the number of swaps in a plan without a signature
func (r *PlanRepository) UnconfirmedCount(ctx context.Context, planID string) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM swap_actions WHERE plan_id = $1 AND signature IS NULL`,
		planID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unconfirmed swaps: %w", err)
	}
	return count, nil
}

// TransitionStatus moves a plan from one status to another with a
// compare-and-swap conditional update, so two finalizers cannot both
// transition the same plan. Returns whether the transition happened.
func (r *PlanRepository) TransitionStatus(ctx context.Context, planID string, from, to types.PlanStatus) (bool, error) {
	query := `
		UPDATE rebalance_plans
		SET status = $3
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Pool().Exec(ctx, query, planID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to transition plan status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByWallet returns the plans for a wallet, newest first
func (r *PlanRepository) ListByWallet(ctx context.Context, publicKey string, limit int) ([]models.RebalancePlan, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, public_key, status, total_value_usd, estimated_slippage,
		       created_at, expires_at
		FROM rebalance_plans
		WHERE public_key = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, publicKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.RebalancePlan
	for rows.Next() {
		var plan models.RebalancePlan
		var status string
		if err := rows.Scan(
			&plan.ID,
			&plan.PublicKey,
			&status,
			&plan.TotalValueUSD,
			&plan.EstimatedSlippage,
			&plan.CreatedAt,
			&plan.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plan.Status = types.PlanStatus(status)
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}
