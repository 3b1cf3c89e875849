package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/portfolio-rebalancer/internal/models"
)

// WalletRepository handles connected wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Upsert registers a wallet, refreshing updated_at when it already exists
func (r *WalletRepository) Upsert(ctx context.Context, publicKey string) (*models.Wallet, error) {
	now := time.Now()

	query := `
		INSERT INTO wallets (public_key, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (public_key)
		DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING public_key, created_at, updated_at
	`

	var wallet models.Wallet
	err := r.db.Pool().QueryRow(ctx, query, publicKey, now).Scan(
		&wallet.PublicKey,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert wallet: %w", err)
	}

	return &wallet, nil
}

// Exists checks whether a wallet is registered
func (r *WalletRepository) Exists(ctx context.Context, publicKey string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallets WHERE public_key = $1)`,
		publicKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet existence: %w", err)
	}
	return exists, nil
}

// GetByPublicKey retrieves a wallet record
func (r *WalletRepository) GetByPublicKey(ctx context.Context, publicKey string) (*models.Wallet, error) {
	query := `
		SELECT public_key, created_at, updated_at
		FROM wallets
		WHERE public_key = $1
	`

	var wallet models.Wallet
	err := r.db.Pool().QueryRow(ctx, query, publicKey).Scan(
		&wallet.PublicKey,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet not found: %s", publicKey)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &wallet, nil
}

// ListWithTargets returns the public keys of all wallets that have at least
// one target allocation declared. Used by the sweep worker.
func (r *WalletRepository) ListWithTargets(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT w.public_key
		FROM wallets w
		JOIN target_allocations t ON t.public_key = w.public_key
		ORDER BY w.public_key
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets with targets: %w", err)
	}
	defer rows.Close()

	var publicKeys []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		publicKeys = append(publicKeys, pk)
	}

	return publicKeys, rows.Err()
}
