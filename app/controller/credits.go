package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-credits/app/factory"
	"github.com/vibast-solutions/ms-go-credits/app/mapper"
	"github.com/vibast-solutions/ms-go-credits/app/service"
	"github.com/vibast-solutions/ms-go-credits/app/types"
)

type CreditsController struct {
	fulfillmentService *service.FulfillmentService
	logger             logrus.FieldLogger
}

func NewCreditsController(fulfillmentService *service.FulfillmentService) *CreditsController {
	return &CreditsController{
		fulfillmentService: fulfillmentService,
		logger:             factory.NewModuleLogger("credits-controller"),
	}
}

func (c *CreditsController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// HandleProviderWebhook acknowledges with 2xx for fulfilled, replayed,
// ignored and permanently rejected deliveries alike; only transient store
// failures answer 5xx so the provider redelivers. Partial state is never
// left behind: rejections happen before the store write, and the store write
// itself is atomic.
func (c *CreditsController) HandleProviderWebhook(ctx echo.Context) error {
	req, err := types.NewProviderWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider", req.GetProvider())

	result, err := c.fulfillmentService.HandleProviderWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		case isPermanentRejection(err):
			logger.WithError(err).Error("Provider delivery rejected")
			return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Status: "rejected", Message: err.Error()})
		default:
			logger.WithError(err).Error("Provider delivery failed, awaiting redelivery")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Status: result.Outcome})
}

func (c *CreditsController) GetBalance(ctx echo.Context) error {
	req, err := types.NewGetBalanceRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	balance, err := c.fulfillmentService.GetBalance(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "account not found")
		}
		c.logger.WithError(err).Error("Get balance failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.BalanceToResponse(balance))
}

func (c *CreditsController) ListGrants(ctx echo.Context) error {
	req, err := types.NewListGrantsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	grants, err := c.fulfillmentService.ListGrants(ctx.Request().Context(), req)
	if err != nil {
		c.logger.WithError(err).Error("List grants failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListGrantsResponse{Grants: mapper.GrantsToResponse(grants)})
}

func (c *CreditsController) CreateAccount(ctx echo.Context) error {
	req, err := types.NewCreateAccountRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	balance, err := c.fulfillmentService.CreateAccount(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.logger.WithError(err).Error("Create account failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusCreated, mapper.BalanceToResponse(balance))
}

func isPermanentRejection(err error) bool {
	return errors.Is(err, service.ErrSignatureInvalid) ||
		errors.Is(err, service.ErrPayloadMalformed) ||
		errors.Is(err, service.ErrMissingCustomer) ||
		errors.Is(err, service.ErrUnknownProduct) ||
		errors.Is(err, service.ErrAccountNotFound)
}

func (c *CreditsController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
