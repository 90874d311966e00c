package entity

import "time"

// CreditGrant is the durable record that an order has been fulfilled. The
// order_id column carries a uniqueness constraint, so at most one grant can
// ever exist per order regardless of how often the provider redelivers.
type CreditGrant struct {
	ID uint64

	OrderID         string
	ProviderEventID *string

	UserID    string
	ProductID string
	Credits   int64

	CreatedAt time.Time
}
