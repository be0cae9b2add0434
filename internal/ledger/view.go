package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tradeops/erp-ledger/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	summaryCacheTTL = 60 * time.Second
)

// LedgerPage is the read model for a client statement: one page of
// entries newest-first, each annotated with a page-local running balance,
// plus the aggregate summary drawn from the client row.
type LedgerPage struct {
	Summary      models.LedgerSummary `json:"summary"`
	Transactions []models.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"pageSize"`
}

// LedgerView produces the running-balance read model. It never touches
// the mutation path; reads are pure and safely retryable.
type LedgerView struct {
	db    *sql.DB
	redis *redis.Client
	store *TransactionStore
}

func NewLedgerView(db *sql.DB, redisClient *redis.Client) *LedgerView {
	return &LedgerView{
		db:    db,
		redis: redisClient,
		store: NewTransactionStore(),
	}
}

// GetLedger returns one page of the client's ledger. The running balance
// is page-local: it does not carry a prior page's total forward. Callers
// needing a lifetime running balance request the full history in one
// page.
func (v *LedgerView) GetLedger(ctx context.Context, clientID string, dateRange *DateRange, page, pageSize int) (*LedgerPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	summary, err := v.getSummary(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entries, err := v.store.ListByClient(v.db, clientID, dateRange, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &LedgerPage{
		Summary:      *summary,
		Transactions: annotateRunningBalance(entries),
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

// annotateRunningBalance attaches a running balance to a newest-first
// page: reverse to oldest-first, accumulate amount - paid per entry,
// reverse back for presentation. Pure function over the slice; no second
// source of truth to drift.
func annotateRunningBalance(entries []models.Transaction) []models.Transaction {
	running := int64(0)
	for i := len(entries) - 1; i >= 0; i-- {
		running += entries[i].Amount - entries[i].Paid
		entries[i].RunningBalance = running
	}
	return entries
}

func summaryCacheKey(clientID string) string {
	return "ledger:summary:" + clientID
}

// getSummary reads the aggregate block from the client row, with a short
// redis cache in front. The guard invalidates the key on every committed
// mutation.
func (v *LedgerView) getSummary(ctx context.Context, clientID string) (*models.LedgerSummary, error) {
	if v.redis != nil {
		if cached, err := v.redis.Get(ctx, summaryCacheKey(clientID)).Result(); err == nil {
			var summary models.LedgerSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return &summary, nil
			}
		}
	}

	var summary models.LedgerSummary
	err := v.db.QueryRow(`
		SELECT c.total_charged, c.total_paid, c.balance,
			(SELECT COUNT(*) FROM transactions t WHERE t.client_id = c.id)
		FROM clients c
		WHERE c.id = $1`, clientID).
		Scan(&summary.TotalCharged, &summary.TotalPaid, &summary.Balance, &summary.TotalTransactions)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}

	if v.redis != nil {
		if data, err := json.Marshal(summary); err == nil {
			if err := v.redis.Set(ctx, summaryCacheKey(clientID), data, summaryCacheTTL).Err(); err != nil {
				log.Printf("[LEDGER] Failed to cache summary for client %s: %v", clientID, err)
			}
		}
	}
	return &summary, nil
}
