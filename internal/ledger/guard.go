package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/tradeops/erp-ledger/internal/audit"
	"github.com/tradeops/erp-ledger/internal/models"
)

const clientColumns = `id, name, status, total_charged, total_paid, balance, version,
		last_active_at, created_at, updated_at, created_by, updated_by`

// ConsistencyGuard wraps every mutating ledger operation in one atomic
// unit: the entry write and the aggregate write commit or roll back
// together. Per-client serialization comes from a FOR UPDATE lock on the
// client row held for the unit's duration; writers to different clients
// never contend. Conflicts are retried a bounded number of times with
// backoff before surfacing.
type ConsistencyGuard struct {
	db           *sql.DB
	redis        *redis.Client
	store        *TransactionStore
	aggregates   *AggregateMaintainer
	audit        *audit.Logger
	maxAttempts  int
	retryBackoff time.Duration

	// in-process halt set, used when redis is unavailable
	haltMu sync.Mutex
	halted map[string]struct{}
}

func NewConsistencyGuard(db *sql.DB, redisClient *redis.Client) *ConsistencyGuard {
	maxAttempts := 3
	retryBackoff := 50 * time.Millisecond
	if env := os.Getenv("LEDGER_MAX_ATTEMPTS"); env != "" {
		if val, err := strconv.Atoi(env); err == nil && val > 0 {
			maxAttempts = val
		}
	}
	if env := os.Getenv("LEDGER_RETRY_BACKOFF_MS"); env != "" {
		if val, err := strconv.Atoi(env); err == nil && val > 0 {
			retryBackoff = time.Duration(val) * time.Millisecond
		}
	}
	return &ConsistencyGuard{
		db:           db,
		redis:        redisClient,
		store:        NewTransactionStore(),
		aggregates:   NewAggregateMaintainer(),
		audit:        audit.NewLogger(),
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		halted:       make(map[string]struct{}),
	}
}

// AddTransaction atomically inserts an entry and folds it into the
// client aggregate with the incremental strategy.
func (g *ConsistencyGuard) AddTransaction(ctx context.Context, clientID string, input EntryInput, actor string) (*models.Transaction, error) {
	if err := g.checkHalted(ctx, clientID); err != nil {
		return nil, err
	}

	var entry *models.Transaction
	err := g.withRetry(ctx, clientID, func(tx *sql.Tx) error {
		client, err := g.lockClient(tx, clientID)
		if err != nil {
			return err
		}
		if client.Status != models.ClientActive {
			return fmt.Errorf("%w: client %s is inactive", ErrValidation, clientID)
		}
		entry, err = g.store.Insert(tx, clientID, input, actor)
		if err != nil {
			return err
		}
		if err := g.aggregates.ApplyInsert(tx, client, entry, actor); err != nil {
			return err
		}
		return g.verifyInvariant(ctx, tx, clientID)
	})
	if err != nil {
		return nil, err
	}

	g.invalidateSummary(ctx, clientID)
	g.audit.LogMutation("TRANSACTION_CREATE", clientID, entry.ID, entry.Amount, actor)
	return entry, nil
}

// UpdateTransaction atomically applies a partial update to an entry and
// reruns the full aggregate recompute for the owning client.
func (g *ConsistencyGuard) UpdateTransaction(ctx context.Context, transactionID string, patch EntryPatch, actor string) (*models.Transaction, error) {
	var entry *models.Transaction
	var clientID string
	err := g.withRetry(ctx, transactionID, func(tx *sql.Tx) error {
		var err error
		clientID, err = g.resolveOwner(tx, transactionID)
		if err != nil {
			return err
		}
		if err := g.checkHalted(ctx, clientID); err != nil {
			return err
		}
		client, err := g.lockClient(tx, clientID)
		if err != nil {
			return err
		}
		entry, err = g.store.Update(tx, transactionID, patch, actor)
		if err != nil {
			return err
		}
		if err := g.aggregates.Recompute(tx, client, actor); err != nil {
			return err
		}
		return g.verifyInvariant(ctx, tx, clientID)
	})
	if err != nil {
		return nil, err
	}

	g.invalidateSummary(ctx, clientID)
	g.audit.LogMutation("TRANSACTION_UPDATE", clientID, entry.ID, entry.Amount, actor)
	return entry, nil
}

// DeleteTransaction atomically removes an entry and reruns the full
// aggregate recompute for the owning client.
func (g *ConsistencyGuard) DeleteTransaction(ctx context.Context, transactionID string, actor string) error {
	var clientID string
	err := g.withRetry(ctx, transactionID, func(tx *sql.Tx) error {
		var err error
		clientID, err = g.resolveOwner(tx, transactionID)
		if err != nil {
			return err
		}
		if err := g.checkHalted(ctx, clientID); err != nil {
			return err
		}
		client, err := g.lockClient(tx, clientID)
		if err != nil {
			return err
		}
		if err := g.store.Delete(tx, transactionID); err != nil {
			return err
		}
		if err := g.aggregates.Recompute(tx, client, actor); err != nil {
			return err
		}
		return g.verifyInvariant(ctx, tx, clientID)
	})
	if err != nil {
		return err
	}

	g.invalidateSummary(ctx, clientID)
	g.audit.LogMutation("TRANSACTION_DELETE", clientID, transactionID, 0, actor)
	return nil
}

// DeleteClient removes a client. A client with transaction history is
// soft-deleted (status INACTIVE, entries retained for audit); a client
// with none is hard-deleted. There is no path back from INACTIVE here.
func (g *ConsistencyGuard) DeleteClient(ctx context.Context, clientID string, actor string) (string, error) {
	var mode string
	err := g.withRetry(ctx, clientID, func(tx *sql.Tx) error {
		client, err := g.lockClient(tx, clientID)
		if err != nil {
			return err
		}
		count, err := g.store.CountByClient(tx, clientID)
		if err != nil {
			return err
		}
		if count > 0 {
			mode = "soft"
			result, err := tx.Exec(`
				UPDATE clients
				SET status = $1, updated_at = $2, updated_by = $3, version = version + 1
				WHERE id = $4 AND version = $5`,
				models.ClientInactive, time.Now(), actor, clientID, client.Version)
			if err != nil {
				return fmt.Errorf("soft delete client: %w", err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if rowsAffected == 0 {
				return fmt.Errorf("%w: client %s version %d", ErrConflict, clientID, client.Version)
			}
			return nil
		}
		mode = "hard"
		if _, err := tx.Exec(`DELETE FROM clients WHERE id = $1`, clientID); err != nil {
			return fmt.Errorf("hard delete client: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	g.invalidateSummary(ctx, clientID)
	g.audit.LogClientDelete(clientID, mode, actor)
	return mode, nil
}

// withRetry runs fn inside one atomic unit, retrying conflicts with
// linear backoff. Every other error aborts immediately.
func (g *ConsistencyGuard) withRetry(ctx context.Context, subject string, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err = g.runAtomic(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		log.Printf("[LEDGER] Conflict on %s (attempt %d/%d): %v", subject, attempt, g.maxAttempts, err)
		if attempt == g.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * g.retryBackoff):
		}
	}
	return err
}

func (g *ConsistencyGuard) runAtomic(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classifyConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyConflict(err)
	}
	return nil
}

// lockClient takes the per-client write lock for the duration of the
// atomic unit. This is the single serialization point for all writers to
// one client.
func (g *ConsistencyGuard) lockClient(tx *sql.Tx, clientID string) (*models.Client, error) {
	var c models.Client
	err := tx.QueryRow(`
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = $1
		FOR UPDATE`, clientID).
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

func (g *ConsistencyGuard) resolveOwner(tx *sql.Tx, transactionID string) (string, error) {
	var clientID string
	err := tx.QueryRow(`SELECT client_id FROM transactions WHERE id = $1`, transactionID).Scan(&clientID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
	}
	if err != nil {
		return "", err
	}
	return clientID, nil
}

// verifyInvariant rereads the aggregate inside the unit and aborts the
// commit if balance != totalCharged - totalPaid. A violation is fatal:
// it halts further writes to the client until resolved.
func (g *ConsistencyGuard) verifyInvariant(ctx context.Context, tx *sql.Tx, clientID string) error {
	var totalCharged, totalPaid, balance int64
	err := tx.QueryRow(`SELECT total_charged, total_paid, balance FROM clients WHERE id = $1`, clientID).
		Scan(&totalCharged, &totalPaid, &balance)
	if err != nil {
		return fmt.Errorf("verify invariant: %w", err)
	}
	if balance != totalCharged-totalPaid {
		g.audit.LogConsistencyViolation(clientID, balance, totalCharged, totalPaid)
		g.halt(ctx, clientID)
		return fmt.Errorf("%w: client %s: balance %d != %d - %d",
			ErrConsistency, clientID, balance, totalCharged, totalPaid)
	}
	return nil
}

func haltKey(clientID string) string {
	return "ledger:halt:" + clientID
}

func (g *ConsistencyGuard) checkHalted(ctx context.Context, clientID string) error {
	if g.redis != nil {
		_, err := g.redis.Get(ctx, haltKey(clientID)).Result()
		if err == nil {
			return fmt.Errorf("%w: writes to client %s are halted", ErrConsistency, clientID)
		}
		if err != redis.Nil {
			log.Printf("[LEDGER] Halt check failed for client %s: %v", clientID, err)
		}
		return nil
	}

	g.haltMu.Lock()
	defer g.haltMu.Unlock()
	if _, ok := g.halted[clientID]; ok {
		return fmt.Errorf("%w: writes to client %s are halted", ErrConsistency, clientID)
	}
	return nil
}

func (g *ConsistencyGuard) halt(ctx context.Context, clientID string) {
	if g.redis != nil {
		if err := g.redis.Set(ctx, haltKey(clientID), "1", 0).Err(); err != nil {
			log.Printf("[LEDGER] Failed to set halt flag for client %s: %v", clientID, err)
		}
		return
	}
	g.haltMu.Lock()
	g.halted[clientID] = struct{}{}
	g.haltMu.Unlock()
}

func (g *ConsistencyGuard) invalidateSummary(ctx context.Context, clientID string) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Del(ctx, summaryCacheKey(clientID)).Err(); err != nil {
		log.Printf("[LEDGER] Failed to invalidate summary cache for client %s: %v", clientID, err)
	}
}

// classifyConflict maps serialization failures and deadlocks from the
// driver onto ErrConflict so the retry loop can pick them up.
func classifyConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}
