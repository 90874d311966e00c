package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-credits/app/entity"
)

type GrantRepository struct {
	db DBTX
}

func NewGrantRepository(db DBTX) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.CreditGrant, error) {
	query := `
		SELECT id, order_id, provider_event_id, user_id, product_id, credits, created_at
		FROM credit_grants
		WHERE order_id = ?
	`

	grant := &entity.CreditGrant{}
	if err := scanGrant(r.db.QueryRowContext(ctx, query, orderID), grant); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return grant, nil
}

func (r *GrantRepository) ListByUserID(ctx context.Context, userID string, limit, offset int32) ([]*entity.CreditGrant, error) {
	query := `
		SELECT id, order_id, provider_event_id, user_id, product_id, credits, created_at
		FROM credit_grants
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]*entity.CreditGrant, 0)
	for rows.Next() {
		item := &entity.CreditGrant{}
		if err := scanGrant(rows, item); err != nil {
			return nil, err
		}
		grants = append(grants, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return grants, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(scan rowScanner, grant *entity.CreditGrant) error {
	var providerEventID sql.NullString

	err := scan.Scan(
		&grant.ID,
		&grant.OrderID,
		&providerEventID,
		&grant.UserID,
		&grant.ProductID,
		&grant.Credits,
		&grant.CreatedAt,
	)
	if err != nil {
		return err
	}

	grant.ProviderEventID = stringPtrFromNull(providerEventID)

	return nil
}
