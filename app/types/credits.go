package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	webhookEventIDHeader   = "webhook-id"
	webhookTimestampHeader = "webhook-timestamp"
	webhookSignatureHeader = "webhook-signature"
)

type ProviderWebhookRequest struct {
	RequestId string
	Provider  string
	EventId   string
	Timestamp string
	Signature string
	Payload   string
}

func (r *ProviderWebhookRequest) GetRequestId() string {
	if r == nil {
		return ""
	}
	return r.RequestId
}

func (r *ProviderWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *ProviderWebhookRequest) GetEventId() string {
	if r == nil {
		return ""
	}
	return r.EventId
}

func (r *ProviderWebhookRequest) GetTimestamp() string {
	if r == nil {
		return ""
	}
	return r.Timestamp
}

func (r *ProviderWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *ProviderWebhookRequest) GetPayload() string {
	if r == nil {
		return ""
	}
	return r.Payload
}

// NewProviderWebhookRequestFromContext captures the raw body and the
// out-of-band signature headers. The body must stay byte-identical to what
// the provider signed, so it is never re-marshaled. Providers do not send a
// request id, so one is generated for log correlation when absent.
func NewProviderWebhookRequestFromContext(ctx echo.Context) (*ProviderWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
		ctx.Request().Header.Set(echo.HeaderXRequestID, requestID)
	}

	return &ProviderWebhookRequest{
		RequestId: requestID,
		Provider:  strings.TrimSpace(strings.ToLower(ctx.Param("provider"))),
		EventId:   strings.TrimSpace(ctx.Request().Header.Get(webhookEventIDHeader)),
		Timestamp: strings.TrimSpace(ctx.Request().Header.Get(webhookTimestampHeader)),
		Signature: strings.TrimSpace(ctx.Request().Header.Get(webhookSignatureHeader)),
		Payload:   string(rawBody),
	}, nil
}

func (r *ProviderWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(r.GetPayload()) == "" {
		return errors.New("payload is required")
	}
	return nil
}

type GetBalanceRequest struct {
	UserId string
}

func (r *GetBalanceRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func NewGetBalanceRequestFromContext(ctx echo.Context) (*GetBalanceRequest, error) {
	return &GetBalanceRequest{UserId: strings.TrimSpace(ctx.Param("user_id"))}, nil
}

func (r *GetBalanceRequest) Validate() error {
	if strings.TrimSpace(r.GetUserId()) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

type ListGrantsRequest struct {
	UserId string
	Limit  int32
	Offset int32
}

func (r *ListGrantsRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *ListGrantsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListGrantsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

func NewListGrantsRequestFromContext(ctx echo.Context) (*ListGrantsRequest, error) {
	req := &ListGrantsRequest{
		UserId: strings.TrimSpace(ctx.Param("user_id")),
		Limit:  100,
		Offset: 0,
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListGrantsRequest) Validate() error {
	if strings.TrimSpace(r.GetUserId()) == "" {
		return errors.New("user_id is required")
	}
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.GetLimit() <= 0 || r.GetLimit() > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}

type CreateAccountRequest struct {
	UserId string `json:"user_id"`
}

func (r *CreateAccountRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func NewCreateAccountRequestFromContext(ctx echo.Context) (*CreateAccountRequest, error) {
	var body CreateAccountRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.UserId = strings.TrimSpace(body.UserId)
	return &body, nil
}

func (r *CreateAccountRequest) Validate() error {
	if strings.TrimSpace(r.GetUserId()) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookAckResponse acknowledges a provider delivery. Permanent rejections
// are acknowledged the same way as successes so the provider stops
// redelivering; the status field tells the two apart.
type WebhookAckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type BalanceResponse struct {
	UserId    string `json:"user_id"`
	Credits   int64  `json:"credits"`
	UpdatedAt string `json:"updated_at"`
}

type GrantResponse struct {
	Id              uint64 `json:"id"`
	OrderId         string `json:"order_id"`
	ProviderEventId string `json:"provider_event_id,omitempty"`
	UserId          string `json:"user_id"`
	ProductId       string `json:"product_id"`
	Credits         int64  `json:"credits"`
	CreatedAt       string `json:"created_at"`
}

type ListGrantsResponse struct {
	Grants []*GrantResponse `json:"grants"`
}
