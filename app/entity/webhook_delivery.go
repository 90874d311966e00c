package entity

import "time"

const (
	DeliveryStatusProcessed int32 = 10
	DeliveryStatusReplayed  int32 = 11
	DeliveryStatusIgnored   int32 = 12
	DeliveryStatusRejected  int32 = 20
)

// WebhookDelivery is the audit trail of every inbound provider delivery,
// including rejected and ignored ones. It is evidence for operators, not
// state the fulfillment path depends on.
type WebhookDelivery struct {
	ID uint64

	Provider        string
	ProviderEventID *string
	OrderID         *string

	Status int32
	Error  *string

	PayloadJSON string

	CreatedAt time.Time
}
