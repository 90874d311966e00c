package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-credits/app/entity"
	"github.com/vibast-solutions/ms-go-credits/app/types"
)

func BalanceToResponse(item *entity.UserBalance) *types.BalanceResponse {
	if item == nil {
		return nil
	}

	return &types.BalanceResponse{
		UserId:    item.UserID,
		Credits:   item.Credits,
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func GrantToResponse(item *entity.CreditGrant) *types.GrantResponse {
	if item == nil {
		return nil
	}

	return &types.GrantResponse{
		Id:              item.ID,
		OrderId:         item.OrderID,
		ProviderEventId: derefString(item.ProviderEventID),
		UserId:          item.UserID,
		ProductId:       item.ProductID,
		Credits:         item.Credits,
		CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func GrantsToResponse(items []*entity.CreditGrant) []*types.GrantResponse {
	grants := make([]*types.GrantResponse, 0, len(items))
	for _, item := range items {
		grants = append(grants, GrantToResponse(item))
	}
	return grants
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
