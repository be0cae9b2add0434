package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradeops/erp-ledger/internal/models"
)

// ClientService handles client lifecycle outside the mutation-heavy
// ledger path: creation, lookup, listing. Deletion lives on the
// ConsistencyGuard because it needs the same atomic unit and lock.
type ClientService struct {
	db *sql.DB
}

func NewClientService(db *sql.DB) *ClientService {
	return &ClientService{db: db}
}

// Create registers a new client in ACTIVE state with zeroed aggregates.
func (s *ClientService) Create(ctx context.Context, name, actor string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrValidation)
	}

	now := time.Now()
	client := &models.Client{
		ID:           uuid.New().String(),
		Name:         name,
		Status:       models.ClientActive,
		Version:      1,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    actor,
		UpdatedBy:    actor,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		client.ID, client.Name, client.Status, client.TotalCharged, client.TotalPaid,
		client.Balance, client.Version, client.LastActiveAt, client.CreatedAt,
		client.UpdatedAt, client.CreatedBy, client.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// Get loads one client regardless of status; inactive clients remain
// readable for audit.
func (s *ClientService) Get(ctx context.Context, clientID string) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = $1`, clientID).
		Scan(&c.ID, &c.Name, &c.Status, &c.TotalCharged, &c.TotalPaid, &c.Balance, &c.Version,
			&c.LastActiveAt, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns active clients ordered by most recent ledger activity.
func (s *ClientService) List(ctx context.Context) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE status = $1
		ORDER BY last_active_at DESC`, models.ClientActive)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.TotalCharged, &c.TotalPaid, &c.Balance,
			&c.Version, &c.LastActiveAt, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
