package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-credits/app/entity"
)

type WebhookDeliveryRepository struct {
	db DBTX
}

func NewWebhookDeliveryRepository(db DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			provider, provider_event_id, order_id, status, error, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		delivery.Provider,
		nullableStringValue(delivery.ProviderEventID),
		nullableStringValue(delivery.OrderID),
		delivery.Status,
		nullableStringValue(delivery.Error),
		delivery.PayloadJSON,
		delivery.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)

	return nil
}

func (r *WebhookDeliveryRepository) ListRejectedSince(ctx context.Context, since time.Time, limit int32) ([]*entity.WebhookDelivery, error) {
	query := `
		SELECT id, provider, provider_event_id, order_id, status, error, payload_json, created_at
		FROM webhook_deliveries
		WHERE status = ? AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.DeliveryStatusRejected, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]*entity.WebhookDelivery, 0)
	for rows.Next() {
		item := &entity.WebhookDelivery{}
		var providerEventID sql.NullString
		var orderID sql.NullString
		var deliveryErr sql.NullString
		err := rows.Scan(
			&item.ID,
			&item.Provider,
			&providerEventID,
			&orderID,
			&item.Status,
			&deliveryErr,
			&item.PayloadJSON,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		item.ProviderEventID = stringPtrFromNull(providerEventID)
		item.OrderID = stringPtrFromNull(orderID)
		item.Error = stringPtrFromNull(deliveryErr)
		deliveries = append(deliveries, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return deliveries, nil
}
