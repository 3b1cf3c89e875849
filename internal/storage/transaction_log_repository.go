package storage

import (
	"context"
	"fmt"

	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/types"
)

// TransactionLogRepository handles the append-only log of on-chain
// transaction outcomes in ClickHouse
type TransactionLogRepository struct {
	db *ClickHouseDB
}

// NewTransactionLogRepository creates a new transaction log repository
func NewTransactionLogRepository(db *ClickHouseDB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

// Insert appends a single transaction log entry
func (r *TransactionLogRepository) Insert(ctx context.Context, entry *models.TransactionLog) error {
	query := `
		INSERT INTO transaction_logs (
			public_key, signature, type, status, details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		entry.PublicKey,
		entry.Signature,
		string(entry.Type),
		string(entry.Status),
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction log: %w", err)
	}

	return nil
}

// GetByWallet returns log entries for a wallet, newest first
func (r *TransactionLogRepository) GetByWallet(ctx context.Context, publicKey string, limit int) ([]models.TransactionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT public_key, signature, type, status, details, timestamp
		FROM transaction_logs
		WHERE public_key = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, publicKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction logs: %w", err)
	}
	defer rows.Close()

	var entries []models.TransactionLog
	for rows.Next() {
		var entry models.TransactionLog
		var logType, status string
		if err := rows.Scan(
			&entry.PublicKey,
			&entry.Signature,
			&logType,
			&status,
			&entry.Details,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction log: %w", err)
		}
		entry.Type = types.TransactionLogType(logType)
		entry.Status = types.TransactionLogStatus(status)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
