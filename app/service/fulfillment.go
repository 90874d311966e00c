package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-credits/app/catalog"
	"github.com/vibast-solutions/ms-go-credits/app/entity"
	"github.com/vibast-solutions/ms-go-credits/app/factory"
	"github.com/vibast-solutions/ms-go-credits/app/metrics"
	"github.com/vibast-solutions/ms-go-credits/app/provider"
	"github.com/vibast-solutions/ms-go-credits/app/repository"
	"github.com/vibast-solutions/ms-go-credits/config"
)

const (
	OutcomeFulfilled = "fulfilled"
	OutcomeReplayed  = "replayed"
	OutcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

type providerWebhookRequest interface {
	GetProvider() string
	GetEventId() string
	GetTimestamp() string
	GetSignature() string
	GetPayload() string
}

type ledgerRepository interface {
	Apply(ctx context.Context, grant *entity.CreditGrant) error
}

type balanceRepository interface {
	Create(ctx context.Context, balance *entity.UserBalance) error
	FindByUserID(ctx context.Context, userID string) (*entity.UserBalance, error)
}

type grantRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (*entity.CreditGrant, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int32) ([]*entity.CreditGrant, error)
}

type webhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
	ListRejectedSince(ctx context.Context, since time.Time, limit int32) ([]*entity.WebhookDelivery, error)
}

// FulfillmentResult reports a delivery that was handled to completion:
// credits granted, a replay absorbed, or an event type this service does not
// act on. Rejections and transient failures come back as errors instead.
type FulfillmentResult struct {
	Outcome string
	Grant   *entity.CreditGrant
}

type FulfillmentService struct {
	ledger        ledgerRepository
	balanceRepo   balanceRepository
	grantRepo     grantRepository
	deliveryRepo  webhookDeliveryRepository
	providerReg   *provider.Registry
	creditCatalog *catalog.Catalog
	jobsCfg       config.JobsConfig
	logger        logrus.FieldLogger
}

func NewFulfillmentService(
	ledger ledgerRepository,
	balanceRepo balanceRepository,
	grantRepo grantRepository,
	deliveryRepo webhookDeliveryRepository,
	providerReg *provider.Registry,
	creditCatalog *catalog.Catalog,
	jobsCfg config.JobsConfig,
) *FulfillmentService {
	return &FulfillmentService{
		ledger:        ledger,
		balanceRepo:   balanceRepo,
		grantRepo:     grantRepo,
		deliveryRepo:  deliveryRepo,
		providerReg:   providerReg,
		creditCatalog: creditCatalog,
		jobsCfg:       jobsCfg,
		logger:        factory.NewModuleLogger("fulfillment-service"),
	}
}

// HandleProviderWebhook runs one delivery end to end: authenticate, resolve
// the credit amount, then apply the grant and balance increment as one atomic
// store write. A redelivered order is absorbed as a no-op and acknowledged
// exactly like a first-time success. Any error it returns other than the
// permanent rejection sentinels is transient: the caller must not acknowledge
// so the provider redelivers.
func (s *FulfillmentService) HandleProviderWebhook(ctx context.Context, req providerWebhookRequest) (*FulfillmentResult, error) {
	providerName := strings.ToLower(strings.TrimSpace(req.GetProvider()))

	providerClient, err := s.providerReg.Get(providerName)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	payload := []byte(req.GetPayload())
	headers := provider.Headers{
		EventID:   strings.TrimSpace(req.GetEventId()),
		Timestamp: strings.TrimSpace(req.GetTimestamp()),
		Signature: strings.TrimSpace(req.GetSignature()),
	}

	notification, err := providerClient.VerifyAndParseNotification(ctx, payload, headers)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrSignatureInvalid):
			s.recordRejected(ctx, providerName, req, nil, nil, err)
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		case errors.Is(err, provider.ErrPayloadMalformed):
			s.recordRejected(ctx, providerName, req, notificationEventID(req), nil, err)
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		default:
			return nil, err
		}
	}

	if !notification.OrderPaid {
		s.recordDelivery(ctx, providerName, req, notification.ProviderEventID, nil, entity.DeliveryStatusIgnored, nil)
		metrics.WebhookDeliveries.WithLabelValues(providerName, OutcomeIgnored).Inc()
		return &FulfillmentResult{Outcome: OutcomeIgnored}, nil
	}

	orderID := notification.OrderID

	if notification.ExternalCustomerID == nil {
		s.recordRejected(ctx, providerName, req, notification.ProviderEventID, &orderID, ErrMissingCustomer)
		return nil, ErrMissingCustomer
	}
	userID := *notification.ExternalCustomerID

	credits, err := s.creditCatalog.Lookup(notification.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownProduct) {
			s.recordRejected(ctx, providerName, req, notification.ProviderEventID, &orderID, err)
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, notification.ProductID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	grant := &entity.CreditGrant{
		OrderID:         orderID,
		ProviderEventID: notification.ProviderEventID,
		UserID:          userID,
		ProductID:       notification.ProductID,
		Credits:         credits,
		CreatedAt:       now,
	}

	if err := s.ledger.Apply(ctx, grant); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyGranted):
			existing, findErr := s.grantRepo.FindByOrderID(ctx, orderID)
			if findErr != nil {
				return nil, findErr
			}
			s.recordDelivery(ctx, providerName, req, notification.ProviderEventID, &orderID, entity.DeliveryStatusReplayed, nil)
			metrics.WebhookDeliveries.WithLabelValues(providerName, OutcomeReplayed).Inc()
			return &FulfillmentResult{Outcome: OutcomeReplayed, Grant: existing}, nil
		case errors.Is(err, repository.ErrAccountNotFound):
			s.recordRejected(ctx, providerName, req, notification.ProviderEventID, &orderID, err)
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
		default:
			metrics.WebhookDeliveries.WithLabelValues(providerName, outcomeFailed).Inc()
			return nil, err
		}
	}

	s.recordDelivery(ctx, providerName, req, notification.ProviderEventID, &orderID, entity.DeliveryStatusProcessed, nil)
	metrics.WebhookDeliveries.WithLabelValues(providerName, OutcomeFulfilled).Inc()
	metrics.CreditsGranted.WithLabelValues(notification.ProductID).Add(float64(credits))

	return &FulfillmentResult{Outcome: OutcomeFulfilled, Grant: grant}, nil
}

func (s *FulfillmentService) GetBalance(ctx context.Context, userID string) (*entity.UserBalance, error) {
	balance, err := s.balanceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, ErrAccountNotFound
	}
	return balance, nil
}

type listGrantsRequest interface {
	GetUserId() string
	GetLimit() int32
	GetOffset() int32
}

func (s *FulfillmentService) ListGrants(ctx context.Context, req listGrantsRequest) ([]*entity.CreditGrant, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = 100
	}
	return s.grantRepo.ListByUserID(ctx, req.GetUserId(), limit, req.GetOffset())
}

// CreateAccount provisions a zero-credit balance row. It is idempotent: the
// signup hook may fire more than once for the same user.
func (s *FulfillmentService) CreateAccount(ctx context.Context, userID string) (*entity.UserBalance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	now := time.Now().UTC()
	balance := &entity.UserBalance{
		UserID:    userID,
		Credits:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.balanceRepo.Create(ctx, balance); err != nil {
		if errors.Is(err, repository.ErrAccountAlreadyExists) {
			return s.GetBalance(ctx, userID)
		}
		return nil, err
	}

	return balance, nil
}

func (s *FulfillmentService) recordRejected(
	ctx context.Context,
	providerName string,
	req providerWebhookRequest,
	providerEventID *string,
	orderID *string,
	cause error,
) {
	reason := strings.TrimSpace(cause.Error())
	if reason == "" {
		reason = "delivery rejected"
	}
	trimmedErr := truncate(reason, 1024)
	s.recordDelivery(ctx, providerName, req, providerEventID, orderID, entity.DeliveryStatusRejected, &trimmedErr)
	metrics.WebhookDeliveries.WithLabelValues(providerName, outcomeRejected).Inc()
}

func (s *FulfillmentService) recordDelivery(
	ctx context.Context,
	providerName string,
	req providerWebhookRequest,
	providerEventID *string,
	orderID *string,
	status int32,
	deliveryErr *string,
) {
	_ = s.deliveryRepo.Create(ctx, &entity.WebhookDelivery{
		Provider:        providerName,
		ProviderEventID: providerEventID,
		OrderID:         orderID,
		Status:          status,
		Error:           deliveryErr,
		PayloadJSON:     req.GetPayload(),
		CreatedAt:       time.Now().UTC(),
	})
}

func notificationEventID(req providerWebhookRequest) *string {
	eventID := strings.TrimSpace(req.GetEventId())
	if eventID == "" {
		return nil
	}
	return &eventID
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
