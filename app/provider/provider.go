package provider

import (
	"context"
	"errors"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")

	// ErrSignatureInvalid means the delivery could not be authenticated
	// against the configured webhook secret.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrPayloadMalformed means the delivery authenticated but its payload
	// could not be parsed into the fields fulfillment needs.
	ErrPayloadMalformed = errors.New("malformed webhook payload")
)

// Headers carries the out-of-band authentication material accompanying a
// webhook delivery.
type Headers struct {
	EventID   string
	Timestamp string
	Signature string
}

// Notification is a provider delivery normalized to the fields the
// fulfillment flow cares about. Deliveries for event types other than a paid
// order come back with OrderPaid=false and are acknowledged without side
// effects.
type Notification struct {
	ProviderEventID *string
	EventType       string
	OrderPaid       bool

	OrderID            string
	ProductID          string
	ExternalCustomerID *string
}

type Provider interface {
	Name() string
	VerifyAndParseNotification(ctx context.Context, payload []byte, headers Headers) (*Notification, error)
}
