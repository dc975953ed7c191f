package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
)

// NotificationConsumer tells each contributing farmer about their payout.
type NotificationConsumer struct {
	repo        domain.Repository
	logger      *logger.Logger
	workerCount int
}

func NewNotificationConsumer(repo domain.Repository, log *logger.Logger, workerCount int) *NotificationConsumer {
	return &NotificationConsumer{
		repo:        repo,
		logger:      log,
		workerCount: workerCount,
	}
}

func (nc *NotificationConsumer) Consume(ctx context.Context, event Event) error {
	processed, err := nc.repo.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return err
	}

	if processed {
		nc.logger.Debug(ctx, "Event already processed, skipping",
			"event_id", event.ID,
		)
		return nil
	}

	payload, ok := event.Payload.(PurchaseSettledEvent)
	if !ok {
		nc.logger.Error(ctx, "Invalid payload type for settlement event",
			"event_id", event.ID,
		)
		return fmt.Errorf("invalid payload type %T", event.Payload)
	}

	ctx = logger.WithPurchaseID(ctx, payload.Purchase.ID)

	notifications := make([]domain.Notification, 0, len(payload.Distributions))
	for _, dist := range payload.Distributions {
		notifications = append(notifications, domain.Notification{
			ID:         uuid.New().String(),
			FarmerID:   dist.FarmerID,
			PurchaseID: dist.PurchaseID,
			ListingID:  dist.ListingID,
			Amount:     dist.PaymentAmount,
			Message: fmt.Sprintf("%s t of %s residue sold, %s credited",
				dist.QuantityTons.String(), payload.Purchase.CropType, dist.PaymentAmount.StringFixed(2)),
			CreatedAt: event.Timestamp,
		})
	}

	err = nc.repo.RecordNotifications(ctx, event.ID, notifications)
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return nil
	}
	if err != nil {
		nc.logger.Error(ctx, "Failed to record notifications",
			"event_id", event.ID,
			"error", err,
		)
		return err
	}

	nc.logger.Debug(ctx, "Farmers notified",
		"count", len(payload.Distributions),
	)

	return nil
}

func (nc *NotificationConsumer) GetWorkerCount() int {
	return nc.workerCount
}
