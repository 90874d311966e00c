package service

import (
	"context"
	"time"
)

const defaultBatchSize = int32(100)

// RunRejectedSweepBatch surfaces recently rejected deliveries so operators
// see orders that will never self-heal through provider redelivery.
func (s *FulfillmentService) RunRejectedSweepBatch(ctx context.Context) error {
	now := time.Now().UTC()
	since := now.Add(-s.jobsCfg.SweepLookback)

	items, err := s.deliveryRepo.ListRejectedSince(ctx, since, s.batchSize())
	if err != nil {
		return err
	}

	for _, delivery := range items {
		if delivery == nil {
			continue
		}
		entry := s.logger.WithField("delivery_id", delivery.ID).WithField("provider", delivery.Provider)
		if delivery.OrderID != nil {
			entry = entry.WithField("order_id", *delivery.OrderID)
		}
		if delivery.ProviderEventID != nil {
			entry = entry.WithField("provider_event_id", *delivery.ProviderEventID)
		}
		if delivery.Error != nil {
			entry = entry.WithField("reason", *delivery.Error)
		}
		entry.Error("Rejected provider delivery requires manual reconciliation")
	}

	if len(items) > 0 {
		s.logger.WithField("count", len(items)).Warn("Rejected deliveries found in sweep window")
	}

	return nil
}

func (s *FulfillmentService) batchSize() int32 {
	if s.jobsCfg.BatchSize > 0 {
		return s.jobsCfg.BatchSize
	}
	return defaultBatchSize
}
