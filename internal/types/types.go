// Package types provides common type definitions for the portfolio rebalancer.
package types

// PlanStatus represents the lifecycle state of a rebalance plan
type PlanStatus string

const (
	// PlanStatusPending represents a plan awaiting execution; partial
	// confirmation keeps a plan pending so execution can resume
	PlanStatusPending PlanStatus = "pending"
	// PlanStatusExecuted represents a plan whose swaps all confirmed on-chain
	PlanStatusExecuted PlanStatus = "executed"
	// PlanStatusFailed represents a plan that was explicitly aborted
	PlanStatusFailed PlanStatus = "failed"
)

// ConfirmationStatus represents the on-chain state of a transaction signature
type ConfirmationStatus string

const (
	// ConfirmationConfirmed means the cluster confirmed the transaction
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	// ConfirmationFinalized means the transaction is rooted and irreversible
	ConfirmationFinalized ConfirmationStatus = "finalized"
	// ConfirmationPending means the transaction is known but not yet confirmed
	ConfirmationPending ConfirmationStatus = "pending"
	// ConfirmationUnknown means the signature was not found
	ConfirmationUnknown ConfirmationStatus = "unknown"
)

// Success reports whether the status counts as a successful confirmation.
// Only confirmed and finalized qualify; pending and unknown do not.
func (s ConfirmationStatus) Success() bool {
	return s == ConfirmationConfirmed || s == ConfirmationFinalized
}

// TransactionLogType categorizes entries in the transaction log
type TransactionLogType string

const (
	// LogTypeRebalance marks a swap confirmation belonging to a rebalance plan
	LogTypeRebalance TransactionLogType = "rebalance"
)

// TransactionLogStatus represents the recorded outcome of a logged transaction
type TransactionLogStatus string

const (
	// LogStatusSuccess represents a confirmed transaction
	LogStatusSuccess TransactionLogStatus = "success"
	// LogStatusFailed represents a transaction that did not confirm
	LogStatusFailed TransactionLogStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
