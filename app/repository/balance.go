package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-credits/app/entity"
)

var ErrAccountAlreadyExists = errors.New("account already exists")

type BalanceRepository struct {
	db DBTX
}

func NewBalanceRepository(db DBTX) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Create(ctx context.Context, balance *entity.UserBalance) error {
	query := `
		INSERT INTO user_balances (user_id, credits, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		balance.UserID,
		balance.Credits,
		balance.CreatedAt,
		balance.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrAccountAlreadyExists
		}
		return err
	}

	return nil
}

func (r *BalanceRepository) FindByUserID(ctx context.Context, userID string) (*entity.UserBalance, error) {
	query := `
		SELECT user_id, credits, created_at, updated_at
		FROM user_balances
		WHERE user_id = ?
	`

	balance := &entity.UserBalance{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&balance.UserID,
		&balance.Credits,
		&balance.CreatedAt,
		&balance.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return balance, nil
}
