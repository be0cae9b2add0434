package models

import (
	"time"
)

// Transaction kinds. The set is closed; unknown kinds are rejected at
// validation time.
const (
	KindCharge   = "CHARGE"
	KindPayment  = "PAYMENT"
	KindTransfer = "TRANSFER"
)

// ValidKind reports whether kind belongs to the closed variant set.
func ValidKind(kind string) bool {
	switch kind {
	case KindCharge, KindPayment, KindTransfer:
		return true
	}
	return false
}

// Transaction represents a single ledger entry owned by a client.
// Amount, Paid and EntryBalance are minor units (cents).
type Transaction struct {
	ID              string    `json:"id" db:"id"`
	ClientID        string    `json:"client_id" db:"client_id"`
	Kind            string    `json:"kind" db:"kind"`
	Amount          int64     `json:"amount" db:"amount"`
	Paid            int64     `json:"paid" db:"paid"`
	EntryBalance    int64     `json:"entry_balance" db:"entry_balance"` // amount - paid, fixed at write time
	TransactionDate time.Time `json:"transaction_date" db:"transaction_date"`
	Counterparty    string    `json:"counterparty,omitempty" db:"counterparty"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	PaymentMethod   string    `json:"payment_method,omitempty" db:"payment_method"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
	CreatedBy       string    `json:"created_by" db:"created_by"`
	UpdatedBy       string    `json:"updated_by" db:"updated_by"`

	// RunningBalance is attached by the ledger view; it is not stored.
	RunningBalance int64 `json:"running_balance" db:"-"`
}
