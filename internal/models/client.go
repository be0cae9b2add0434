package models

import (
	"time"
)

// Client lifecycle states. INACTIVE is terminal within the ledger:
// a client with transaction history is never hard-deleted.
const (
	ClientActive   = "ACTIVE"
	ClientInactive = "INACTIVE"
)

// Client represents a trading client and its ledger aggregate.
// All money fields are minor units (cents).
type Client struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Status       string    `json:"status" db:"status"`
	TotalCharged int64     `json:"total_charged" db:"total_charged"`
	TotalPaid    int64     `json:"total_paid" db:"total_paid"`
	Balance      int64     `json:"balance" db:"balance"`
	Version      int       `json:"version" db:"version"` // for optimistic locking
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	CreatedBy    string    `json:"created_by" db:"created_by"`
	UpdatedBy    string    `json:"updated_by" db:"updated_by"`
}

// LedgerSummary is the aggregate block returned alongside a ledger page.
// Drawn from the client row, never recomputed from the page.
type LedgerSummary struct {
	TotalTransactions int   `json:"totalTransactions"`
	TotalCharged      int64 `json:"totalCharged"`
	TotalPaid         int64 `json:"totalPaid"`
	Balance           int64 `json:"balance"`
}
