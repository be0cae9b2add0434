package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tradeops/erp-ledger/internal/models"
)

// EntryInput carries the caller-supplied fields for a new ledger entry.
type EntryInput struct {
	Kind            string
	Amount          int64
	Paid            int64
	TransactionDate time.Time
	Counterparty    string
	Notes           string
	PaymentMethod   string
}

// EntryPatch is a partial update; nil fields keep their stored value.
type EntryPatch struct {
	Amount          *int64
	Paid            *int64
	TransactionDate *time.Time
	Counterparty    *string
	Notes           *string
	PaymentMethod   *string
}

// DateRange filters a ledger listing; nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// TransactionStore persists individual ledger entries. It owns field
// validation and nothing else; every mutating method runs inside the
// caller's database transaction so the entry and the client aggregate
// commit or roll back together.
type TransactionStore struct{}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{}
}

const entryColumns = `id, client_id, kind, amount, paid, entry_balance, transaction_date,
		counterparty, notes, payment_method, created_at, updated_at, created_by, updated_by`

// Insert validates and writes a new entry. A PAYMENT with paid=0 is
// stored with paid=amount: a recorded payment is settled by definition,
// which keeps the incremental and full-recompute aggregate strategies in
// agreement. entryBalance is fixed at write time as amount - paid.
func (s *TransactionStore) Insert(tx *sql.Tx, clientID string, input EntryInput, actor string) (*models.Transaction, error) {
	if err := validateEntryInput(input); err != nil {
		return nil, err
	}

	paid := input.Paid
	if input.Kind == models.KindPayment && paid == 0 {
		paid = input.Amount
	}

	now := time.Now()
	entry := &models.Transaction{
		ID:              uuid.New().String(),
		ClientID:        clientID,
		Kind:            input.Kind,
		Amount:          input.Amount,
		Paid:            paid,
		EntryBalance:    input.Amount - paid,
		TransactionDate: input.TransactionDate,
		Counterparty:    input.Counterparty,
		Notes:           input.Notes,
		PaymentMethod:   input.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       actor,
		UpdatedBy:       actor,
	}

	_, err := tx.Exec(`
		INSERT INTO transactions (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.ClientID, entry.Kind, entry.Amount, entry.Paid, entry.EntryBalance,
		entry.TransactionDate, entry.Counterparty, entry.Notes, entry.PaymentMethod,
		entry.CreatedAt, entry.UpdatedAt, entry.CreatedBy, entry.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return entry, nil
}

// Get loads one entry by id within the transaction.
func (s *TransactionStore) Get(tx *sql.Tx, id string) (*models.Transaction, error) {
	row := tx.QueryRow(`
		SELECT `+entryColumns+`
		FROM transactions
		WHERE id = $1`, id)
	return scanEntry(row)
}

// Update applies a partial update. entryBalance is recomputed only when
// amount or paid changed.
func (s *TransactionStore) Update(tx *sql.Tx, id string, patch EntryPatch, actor string) (*models.Transaction, error) {
	entry, err := s.Get(tx, id)
	if err != nil {
		return nil, err
	}

	if patch.Amount != nil {
		if *patch.Amount < 0 {
			return nil, fmt.Errorf("%w: amount must be >= 0", ErrValidation)
		}
		entry.Amount = *patch.Amount
	}
	if patch.Paid != nil {
		if *patch.Paid < 0 {
			return nil, fmt.Errorf("%w: paid must be >= 0", ErrValidation)
		}
		entry.Paid = *patch.Paid
	}
	if patch.Amount != nil || patch.Paid != nil {
		entry.EntryBalance = entry.Amount - entry.Paid
	}
	if patch.TransactionDate != nil {
		if patch.TransactionDate.IsZero() {
			return nil, fmt.Errorf("%w: transaction date is required", ErrValidation)
		}
		entry.TransactionDate = *patch.TransactionDate
	}
	if patch.Counterparty != nil {
		entry.Counterparty = *patch.Counterparty
	}
	if patch.Notes != nil {
		entry.Notes = *patch.Notes
	}
	if patch.PaymentMethod != nil {
		entry.PaymentMethod = *patch.PaymentMethod
	}
	entry.UpdatedAt = time.Now()
	entry.UpdatedBy = actor

	_, err = tx.Exec(`
		UPDATE transactions
		SET amount = $1, paid = $2, entry_balance = $3, transaction_date = $4,
			counterparty = $5, notes = $6, payment_method = $7, updated_at = $8, updated_by = $9
		WHERE id = $10`,
		entry.Amount, entry.Paid, entry.EntryBalance, entry.TransactionDate,
		entry.Counterparty, entry.Notes, entry.PaymentMethod, entry.UpdatedAt, entry.UpdatedBy,
		entry.ID)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}

	return entry, nil
}

// Delete removes the entry row.
func (s *TransactionStore) Delete(tx *sql.Tx, id string) error {
	result, err := tx.Exec(`DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return nil
}

// ListByClient returns one page of entries newest-first: transaction_date
// descending, created_at descending as tie-break, id descending as a
// stable last resort. Restartable via limit/offset.
func (s *TransactionStore) ListByClient(db *sql.DB, clientID string, dateRange *DateRange, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM transactions
		WHERE client_id = $1`
	args := []any{clientID}

	if dateRange != nil {
		if dateRange.From != nil {
			args = append(args, *dateRange.From)
			query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
		}
		if dateRange.To != nil {
			args = append(args, *dateRange.To)
			query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
		}
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY transaction_date DESC, created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Transaction
	for rows.Next() {
		var e models.Transaction
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Kind, &e.Amount, &e.Paid, &e.EntryBalance,
			&e.TransactionDate, &e.Counterparty, &e.Notes, &e.PaymentMethod,
			&e.CreatedAt, &e.UpdatedAt, &e.CreatedBy, &e.UpdatedBy); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByClient returns the number of entries a client owns.
func (s *TransactionStore) CountByClient(tx *sql.Tx, clientID string) (int, error) {
	var count int
	err := tx.QueryRow(`SELECT COUNT(*) FROM transactions WHERE client_id = $1`, clientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func validateEntryInput(input EntryInput) error {
	if !models.ValidKind(input.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, input.Kind)
	}
	if input.Amount < 0 {
		return fmt.Errorf("%w: amount must be >= 0", ErrValidation)
	}
	if input.Paid < 0 {
		return fmt.Errorf("%w: paid must be >= 0", ErrValidation)
	}
	if input.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction date is required", ErrValidation)
	}
	return nil
}

func scanEntry(row *sql.Row) (*models.Transaction, error) {
	var e models.Transaction
	err := row.Scan(&e.ID, &e.ClientID, &e.Kind, &e.Amount, &e.Paid, &e.EntryBalance,
		&e.TransactionDate, &e.Counterparty, &e.Notes, &e.PaymentMethod,
		&e.CreatedAt, &e.UpdatedAt, &e.CreatedBy, &e.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
