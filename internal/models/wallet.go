// Package models provides data models for the portfolio rebalancer system.
package models

import (
	"time"
)

// Wallet represents a connected wallet tracked by the rebalancer
type Wallet struct {
	PublicKey string    `json:"publicKey" db:"public_key"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
