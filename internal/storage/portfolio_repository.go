package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-rebalancer/internal/models"
)

// PortfolioRepository handles persisted portfolio snapshot entries.
// Entries are a write-through cache keyed by (public_key, token_mint); the
// chain remains the source of truth for balances.
type PortfolioRepository struct {
	db *PostgresDB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *PostgresDB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// UpsertEntry writes one valued snapshot entry, overwriting the previous
// entry for the same wallet and mint
func (r *PortfolioRepository) UpsertEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO portfolio_entries (
			public_key, token_mint, token_symbol, balance, decimals,
			price_usd, value_usd, percentage, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (public_key, token_mint)
		DO UPDATE SET
			token_symbol = EXCLUDED.token_symbol,
			balance = EXCLUDED.balance,
			decimals = EXCLUDED.decimals,
			price_usd = EXCLUDED.price_usd,
			value_usd = EXCLUDED.value_usd,
			percentage = EXCLUDED.percentage,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		entry.PublicKey,
		entry.TokenMint,
		entry.TokenSymbol,
		entry.Balance,
		int16(entry.Decimals),
		entry.PriceUSD,
		entry.ValueUSD,
		entry.Percentage,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert portfolio entry: %w", err)
	}

	return nil
}

// GetEntries returns the persisted snapshot entries for a wallet
func (r *PortfolioRepository) GetEntries(ctx context.Context, publicKey string) ([]models.PortfolioEntry, error) {
	query := `
		SELECT public_key, token_mint, token_symbol, balance, decimals,
		       price_usd, value_usd, percentage, updated_at
		FROM portfolio_entries
		WHERE public_key = $1
		ORDER BY value_usd DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio entries: %w", err)
	}
	defer rows.Close()

	var entries []models.PortfolioEntry
	for rows.Next() {
		var entry models.PortfolioEntry
		var decimals int16
		if err := rows.Scan(
			&entry.PublicKey,
			&entry.TokenMint,
			&entry.TokenSymbol,
			&entry.Balance,
			&decimals,
			&entry.PriceUSD,
			&entry.ValueUSD,
			&entry.Percentage,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio entry: %w", err)
		}
		entry.Decimals = uint8(decimals) // #nosec G115 - token decimals fit in uint8
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteStaleEntries removes entries for mints no longer held by the wallet
func (r *PortfolioRepository) DeleteStaleEntries(ctx context.Context, publicKey string, keepMints []string) error {
	query := `
		DELETE FROM portfolio_entries
		WHERE public_key = $1 AND NOT (token_mint = ANY($2))
	`

	_, err := r.db.Pool().Exec(ctx, query, publicKey, keepMints)
	if err != nil {
		return fmt.Errorf("failed to delete stale portfolio entries: %w", err)
	}

	return nil
}
