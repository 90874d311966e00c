package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	polarName          = "polar"
	orderPaidEventType = "order.paid"
)

type PolarConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

// PolarProvider authenticates Polar webhook deliveries. Polar signs
// deliveries per the Standard Webhooks spec: webhook-id, webhook-timestamp
// and webhook-signature headers, where the signature is a base64 HMAC-SHA256
// of "{id}.{timestamp}.{payload}" under the shared secret.
type PolarProvider struct {
	cfg PolarConfig
}

func NewPolarProvider(cfg PolarConfig) *PolarProvider {
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	return &PolarProvider{cfg: cfg}
}

func (p *PolarProvider) Name() string {
	return polarName
}

func (p *PolarProvider) VerifyAndParseNotification(_ context.Context, payload []byte, headers Headers) (*Notification, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, errors.New("polar webhook secret is not configured")
	}
	if err := verifyStandardWebhookSignature(payload, headers, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds); err != nil {
		return nil, err
	}

	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	result := &Notification{EventType: strings.TrimSpace(envelope.Type)}
	if eventID := strings.TrimSpace(headers.EventID); eventID != "" {
		result.ProviderEventID = &eventID
	}

	if result.EventType != orderPaidEventType {
		return result, nil
	}

	var order struct {
		ID        string `json:"id"`
		ProductID string `json:"product_id"`
		Customer  struct {
			ID         string  `json:"id"`
			ExternalID *string `json:"external_id"`
		} `json:"customer"`
	}
	if err := json.Unmarshal(envelope.Data, &order); err != nil {
		return nil, fmt.Errorf("%w: order data: %v", ErrPayloadMalformed, err)
	}

	orderID := strings.TrimSpace(order.ID)
	productID := strings.TrimSpace(order.ProductID)
	if orderID == "" || productID == "" {
		return nil, fmt.Errorf("%w: order id and product id are required", ErrPayloadMalformed)
	}

	result.OrderPaid = true
	result.OrderID = orderID
	result.ProductID = productID
	if order.Customer.ExternalID != nil {
		if externalID := strings.TrimSpace(*order.Customer.ExternalID); externalID != "" {
			result.ExternalCustomerID = &externalID
		}
	}

	return result, nil
}

func verifyStandardWebhookSignature(payload []byte, headers Headers, secret string, toleranceSeconds int64) error {
	eventID := strings.TrimSpace(headers.EventID)
	ts := strings.TrimSpace(headers.Timestamp)
	signatureHeader := strings.TrimSpace(headers.Signature)
	if eventID == "" || ts == "" || signatureHeader == "" {
		return fmt.Errorf("%w: missing signature headers", ErrSignatureInvalid)
	}

	key, err := decodeWebhookSecret(secret)
	if err != nil {
		return err
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	signedContent := []byte(eventID + "." + ts + "." + string(payload))
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(signedContent)
	expected := mac.Sum(nil)

	for _, part := range strings.Fields(signatureHeader) {
		version, sig, found := strings.Cut(part, ",")
		if !found || version != "v1" {
			continue
		}
		candidate, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}

	return ErrSignatureInvalid
}

func decodeWebhookSecret(secret string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(secret), "whsec_")
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("polar webhook secret is not valid base64: %w", err)
	}
	return key, nil
}
