package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/tradeops/erp-ledger/internal/models"
)

func TestClientService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("starts active with zeroed aggregates", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewClientService(db)

		mock.ExpectExec("INSERT INTO clients").
			WithArgs(sqlmock.AnyArg(), "Acme Trading", models.ClientActive, int64(0), int64(0), int64(0), 1,
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "user1", "user1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		client, err := service.Create(ctx, "Acme Trading", "user1")
		assert.NoError(t, err)
		assert.Equal(t, models.ClientActive, client.Status)
		assert.Equal(t, int64(0), client.Balance)
		assert.Equal(t, 1, client.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blank name", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewClientService(db)

		_, err = service.Create(ctx, "   ", "user1")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestClientService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("existing client", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewClientService(db)
		now := time.Now()

		mock.ExpectQuery("FROM clients WHERE id = \\$1").
			WithArgs("client1").
			WillReturnRows(sqlmock.NewRows(clientRowColumns).
				AddRow("client1", "Acme Trading", models.ClientInactive, 1200, 200, 1000, 6, now, now, now, "user1", "user1"))

		client, err := service.Get(ctx, "client1")
		assert.NoError(t, err)
		// Inactive clients stay readable for audit.
		assert.Equal(t, models.ClientInactive, client.Status)
		assert.Equal(t, int64(1000), client.Balance)
	})

	t.Run("unknown client", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewClientService(db)

		mock.ExpectQuery("FROM clients WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err = service.Get(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClientService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewClientService(db)
	now := time.Now()

	mock.ExpectQuery("WHERE status = \\$1 ORDER BY last_active_at DESC").
		WithArgs(models.ClientActive).
		WillReturnRows(sqlmock.NewRows(clientRowColumns).
			AddRow("client2", "Globex", models.ClientActive, 0, 0, 0, 1, now, now, now, "user1", "user1").
			AddRow("client1", "Acme Trading", models.ClientActive, 500, 0, 500, 2, now.Add(-time.Hour), now, now, "user1", "user1"))

	clients, err := service.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, clients, 2)
	assert.Equal(t, "Globex", clients[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
