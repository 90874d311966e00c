package service

import "errors"

// Permanent rejection classes. The provider gains nothing by redelivering
// these, so the controller acknowledges them; they surface to operators via
// error logs, the rejection metric and the webhook_deliveries audit table.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrSignatureInvalid    = errors.New("webhook signature rejected")
	ErrPayloadMalformed    = errors.New("webhook payload malformed")
	ErrMissingCustomer     = errors.New("order has no external customer id")
	ErrUnknownProduct      = errors.New("product is not in the credit catalog")
	ErrAccountNotFound     = errors.New("account not found")
)
