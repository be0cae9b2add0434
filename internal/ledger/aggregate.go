package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tradeops/erp-ledger/internal/models"
)

// AggregateMaintainer keeps a client's summary fields (totalCharged,
// totalPaid, balance) consistent with its entry set. Two strategies:
// an incremental apply on insert, a full recompute on update/delete.
// Both write back through a version-checked UPDATE so a concurrent
// writer that raced past the row lock still cannot lose an update.
type AggregateMaintainer struct{}

func NewAggregateMaintainer() *AggregateMaintainer {
	return &AggregateMaintainer{}
}

// ApplyInsert folds one freshly inserted entry into the client aggregate:
// a CHARGE adds its amount to totalCharged; every kind adds its paid to
// totalPaid. TRANSFER therefore moves nothing unless it carries paid.
func (m *AggregateMaintainer) ApplyInsert(tx *sql.Tx, client *models.Client, entry *models.Transaction, actor string) error {
	totalCharged := client.TotalCharged
	totalPaid := client.TotalPaid

	if entry.Kind == models.KindCharge {
		totalCharged += entry.Amount
	}
	totalPaid += entry.Paid

	return m.writeAggregate(tx, client, totalCharged, totalPaid, actor)
}

// Recompute re-derives the aggregate from the surviving entry set:
// totalCharged as the sum of amount over CHARGE entries, totalPaid as the
// sum of paid over entries of every kind. Idempotent by construction.
func (m *AggregateMaintainer) Recompute(tx *sql.Tx, client *models.Client, actor string) error {
	var totalCharged, totalPaid int64
	err := tx.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'CHARGE' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(paid), 0)
		FROM transactions
		WHERE client_id = $1`, client.ID).Scan(&totalCharged, &totalPaid)
	if err != nil {
		return fmt.Errorf("recompute aggregate: %w", err)
	}

	return m.writeAggregate(tx, client, totalCharged, totalPaid, actor)
}

func (m *AggregateMaintainer) writeAggregate(tx *sql.Tx, client *models.Client, totalCharged, totalPaid int64, actor string) error {
	balance := totalCharged - totalPaid
	now := time.Now()

	result, err := tx.Exec(`
		UPDATE clients
		SET total_charged = $1, total_paid = $2, balance = $3,
			last_active_at = $4, updated_at = $4, updated_by = $5, version = version + 1
		WHERE id = $6 AND version = $7`,
		totalCharged, totalPaid, balance, now, actor, client.ID, client.Version)
	if err != nil {
		return fmt.Errorf("update aggregate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: client %s version %d", ErrConflict, client.ID, client.Version)
	}

	client.TotalCharged = totalCharged
	client.TotalPaid = totalPaid
	client.Balance = balance
	client.LastActiveAt = now
	client.UpdatedAt = now
	client.UpdatedBy = actor
	client.Version++
	return nil
}
