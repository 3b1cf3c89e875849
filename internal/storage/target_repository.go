package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-rebalancer/internal/models"
)

// TargetRepository handles target allocation persistence
type TargetRepository struct {
	db *PostgresDB
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *PostgresDB) *TargetRepository {
	return &TargetRepository{db: db}
}

// ReplaceAll atomically replaces the full target set for a wallet.
// Saves are all-or-nothing: validation failures upstream mean no rows are
// touched, and a failed insert rolls back the delete.
func (r *TargetRepository) ReplaceAll(ctx context.Context, publicKey string, targets []models.TargetAllocation) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	if _, err := tx.Exec(ctx,
		`DELETE FROM target_allocations WHERE public_key = $1`,
		publicKey,
	); err != nil {
		return fmt.Errorf("failed to delete existing targets: %w", err)
	}

	query := `
		INSERT INTO target_allocations (
			id, public_key, token_mint, token_symbol,
			target_percentage, threshold, position, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	for i := range targets {
		t := &targets[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.PublicKey = publicKey
		t.CreatedAt = now

		if _, err := tx.Exec(ctx, query,
			t.ID,
			t.PublicKey,
			t.TokenMint,
			t.TokenSymbol,
			t.TargetPercentage,
			t.ThresholdPercentage,
			i,
			t.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert target for %s: %w", t.TokenMint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit target replacement: %w", err)
	}

	return nil
}

// GetByWallet returns the target set for a wallet in declaration order.
// Order matters: deviation analysis and plan generation iterate targets in
// the order the user declared them.
func (r *TargetRepository) GetByWallet(ctx context.Context, publicKey string) ([]models.TargetAllocation, error) {
	query := `
		SELECT id, public_key, token_mint, token_symbol,
		       target_percentage, threshold, created_at
		FROM target_allocations
		WHERE public_key = $1
		ORDER BY position
	`

	rows, err := r.db.Pool().Query(ctx, query, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []models.TargetAllocation
	for rows.Next() {
		var t models.TargetAllocation
		if err := rows.Scan(
			&t.ID,
			&t.PublicKey,
			&t.TokenMint,
			&t.TokenSymbol,
			&t.TargetPercentage,
			&t.ThresholdPercentage,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, t)
	}

	return targets, rows.Err()
}
