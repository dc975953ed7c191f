package service

import (
	"context"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
)

type NotificationService interface {
	ListNotifications(ctx context.Context, farmer domain.Identity) ([]domain.Notification, error)
}

type notificationService struct {
	repo   domain.Repository
	logger *logger.Logger
}

func NewNotificationService(repo domain.Repository, log *logger.Logger) NotificationService {
	return &notificationService{
		repo:   repo,
		logger: log,
	}
}

func (s *notificationService) ListNotifications(ctx context.Context, farmer domain.Identity) ([]domain.Notification, error) {
	if err := requireRole(farmer, domain.RoleFarmer); err != nil {
		return nil, err
	}

	ctx = logger.WithUserID(ctx, farmer.UserID)

	notes, err := s.repo.ListNotifications(ctx, farmer.UserID)
	if err != nil {
		s.logger.Error(ctx, "Failed to list notifications",
			"error", err,
		)
		return nil, err
	}

	return notes, nil
}
