package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-credits/app/entity"
)

var (
	// ErrAlreadyGranted means a grant for this order already exists. The
	// uniqueness constraint on credit_grants.order_id makes the insert the
	// idempotency guard: under concurrent deliveries of the same order the
	// store lets exactly one insert through.
	ErrAlreadyGranted = errors.New("order already granted")

	ErrAccountNotFound = errors.New("account not found")
)

// LedgerRepository performs the one atomic unit of fulfillment: insert the
// grant record and increment the user's balance in a single transaction.
// Either both effects commit or neither does.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Apply(ctx context.Context, grant *entity.CreditGrant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insertQuery := `
		INSERT INTO credit_grants (
			order_id, provider_event_id, user_id, product_id, credits, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, insertQuery,
		grant.OrderID,
		nullableStringValue(grant.ProviderEventID),
		grant.UserID,
		grant.ProductID,
		grant.Credits,
		grant.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrAlreadyGranted
		}
		return err
	}

	updateQuery := `
		UPDATE user_balances
		SET credits = credits + ?, updated_at = ?
		WHERE user_id = ?
	`
	updateResult, err := tx.ExecContext(ctx, updateQuery, grant.Credits, grant.CreatedAt, grant.UserID)
	if err != nil {
		return err
	}
	affected, err := updateResult.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	grant.ID = uint64(id)

	return nil
}
