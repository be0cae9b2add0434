package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/tradeops/erp-ledger/internal/models"
)

func TestTransactionStore_Insert(t *testing.T) {
	store := NewTransactionStore()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("charge keeps supplied paid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "client1", models.KindCharge, int64(1000), int64(200), int64(800),
				date, "ACME", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "user1", "user1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		entry, err := store.Insert(tx, "client1", EntryInput{
			Kind:            models.KindCharge,
			Amount:          1000,
			Paid:            200,
			TransactionDate: date,
			Counterparty:    "ACME",
		}, "user1")
		assert.NoError(t, err)
		assert.Equal(t, int64(800), entry.EntryBalance)
		assert.Equal(t, "user1", entry.CreatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payment with zero paid is stored settled", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "client1", models.KindPayment, int64(500), int64(500), int64(0),
				date, "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "user1", "user1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		entry, err := store.Insert(tx, "client1", EntryInput{
			Kind:            models.KindPayment,
			Amount:          500,
			TransactionDate: date,
		}, "user1")
		assert.NoError(t, err)
		assert.Equal(t, int64(500), entry.Paid)
		assert.Equal(t, int64(0), entry.EntryBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed input before any write", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		cases := []EntryInput{
			{Kind: "REFUND", Amount: 100, TransactionDate: date},
			{Kind: models.KindCharge, Amount: -1, TransactionDate: date},
			{Kind: models.KindCharge, Amount: 100, Paid: -5, TransactionDate: date},
			{Kind: models.KindCharge, Amount: 100},
		}
		for _, input := range cases {
			_, err := store.Insert(tx, "client1", input, "user1")
			assert.ErrorIs(t, err, ErrValidation)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionStore_Update(t *testing.T) {
	store := NewTransactionStore()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	entryRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "client_id", "kind", "amount", "paid", "entry_balance", "transaction_date",
			"counterparty", "notes", "payment_method", "created_at", "updated_at", "created_by", "updated_by",
		}).AddRow("tx1", "client1", models.KindCharge, 1000, 200, 800, date, "", "", "", now, now, "user1", "user1")
	}

	t.Run("amount change recomputes entry balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("FROM transactions WHERE id = \\$1").
			WithArgs("tx1").
			WillReturnRows(entryRow())
		mock.ExpectExec("UPDATE transactions").
			WithArgs(int64(1200), int64(200), int64(1000), date, "", "", "", sqlmock.AnyArg(), "user2", "tx1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		amount := int64(1200)
		entry, err := store.Update(tx, "tx1", EntryPatch{Amount: &amount}, "user2")
		assert.NoError(t, err)
		assert.Equal(t, int64(1000), entry.EntryBalance)
		assert.Equal(t, "user2", entry.UpdatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("metadata-only change keeps entry balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("FROM transactions WHERE id = \\$1").
			WithArgs("tx1").
			WillReturnRows(entryRow())
		mock.ExpectExec("UPDATE transactions").
			WithArgs(int64(1000), int64(200), int64(800), date, "Globex", "", "", sqlmock.AnyArg(), "user2", "tx1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		counterparty := "Globex"
		entry, err := store.Update(tx, "tx1", EntryPatch{Counterparty: &counterparty}, "user2")
		assert.NoError(t, err)
		assert.Equal(t, int64(800), entry.EntryBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("FROM transactions WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err = store.Update(tx, "ghost", EntryPatch{}, "user2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactionStore_Delete(t *testing.T) {
	store := NewTransactionStore()

	t.Run("existing entry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("DELETE FROM transactions WHERE id = \\$1").
			WithArgs("tx1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Delete(tx, "tx1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown entry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("DELETE FROM transactions WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Delete(tx, "ghost"), ErrNotFound)
	})
}
