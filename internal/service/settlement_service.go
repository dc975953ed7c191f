package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/eventbus"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/grachmannico95/residue-market-be/pkg/retry"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type PurchaseRequest struct {
	domain.OfferKey
	Quantity decimal.Decimal
}

type SettlementResult struct {
	Purchase      domain.BulkPurchase                `json:"purchase"`
	Distributions []domain.FarmerPaymentDistribution `json:"distributions"`
}

type SettlementService interface {
	Purchase(ctx context.Context, buyer domain.Identity, req PurchaseRequest) (*SettlementResult, error)
	GetPurchase(ctx context.Context, buyer domain.Identity, purchaseID string) (*SettlementResult, error)
	ListPurchases(ctx context.Context, buyer domain.Identity) ([]domain.BulkPurchase, error)
}

type SettlementConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Scales         Scales
}

type settlementService struct {
	repo   domain.Repository
	bus    eventbus.EventBus
	cfg    SettlementConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewSettlementService(repo domain.Repository, bus eventbus.EventBus, cfg SettlementConfig, log *logger.Logger) SettlementService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 50 * time.Millisecond
	}
	if cfg.Scales == (Scales{}) {
		cfg.Scales = DefaultScales
	}

	return &settlementService{
		repo:   repo,
		bus:    bus,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

func validatePurchase(req PurchaseRequest) error {
	if req.PanchayatID == "" {
		return fmt.Errorf("%w: panchayat_id is required", domain.ErrValidation)
	}
	if !req.CropType.Valid() {
		return fmt.Errorf("%w: unknown crop type %q", domain.ErrValidation, req.CropType)
	}
	if !req.DisposalMethod.Valid() {
		return fmt.Errorf("%w: unknown disposal method %q", domain.ErrValidation, req.DisposalMethod)
	}
	if !req.DisposalMethod.Priced() {
		return fmt.Errorf("%w: %s offers are not purchasable", domain.ErrValidation, req.DisposalMethod)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be greater than zero", domain.ErrValidation)
	}
	return nil
}

// Purchase settles a buyer's purchase against one aggregated offer. The whole
// settlement commits atomically or not at all; conflicting concurrent writes
// are retried against freshly read listings.
func (s *settlementService) Purchase(ctx context.Context, buyer domain.Identity, req PurchaseRequest) (*SettlementResult, error) {
	if err := requireRole(buyer, domain.RoleBuyer); err != nil {
		return nil, err
	}

	ctx = logger.WithUserID(ctx, buyer.UserID)

	if err := validatePurchase(req); err != nil {
		s.logger.Warn(ctx, "Rejected purchase request",
			"error", err,
		)
		return nil, err
	}

	var result *SettlementResult
	attempt := 0
	err := retry.Do(ctx, func() error {
		attempt++
		var err error
		result, err = s.settle(ctx, buyer, req)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.logger.Warn(ctx, "Settlement conflict",
				"attempt", attempt,
				"panchayat_id", req.PanchayatID,
				"crop_type", req.CropType,
			)
		}
		return err
	},
		retry.WithMaxAttempts(s.cfg.MaxAttempts),
		retry.WithBaseDelay(s.cfg.RetryBaseDelay),
		retry.WithMaxDelay(s.cfg.RetryBaseDelay*8),
		retry.WithRetryIf(func(err error) bool {
			return errors.Is(err, domain.ErrConcurrencyConflict)
		}),
	)
	if err != nil {
		s.logger.Error(ctx, "Settlement failed",
			"panchayat_id", req.PanchayatID,
			"crop_type", req.CropType,
			"quantity", req.Quantity.String(),
			"error", err,
		)
		return nil, err
	}

	ctx = logger.WithPurchaseID(ctx, result.Purchase.ID)
	s.logger.Info(ctx, "Purchase settled",
		"total_quantity", result.Purchase.TotalQuantity.String(),
		"total_amount", result.Purchase.TotalAmount.String(),
		"listings", len(result.Distributions),
	)

	s.publishSettled(ctx, result)

	return result, nil
}

func (s *settlementService) settle(ctx context.Context, buyer domain.Identity, req PurchaseRequest) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.repo.WithinTx(ctx, func(tx domain.SettlementTx) error {
		members, err := tx.LockEligibleListings(ctx, req.OfferKey)
		if err != nil {
			return persistenceErr("load offer listings", err)
		}

		alloc, err := Distribute(members, req.Quantity, s.cfg.Scales)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		purchase := domain.BulkPurchase{
			ID:              uuid.New().String(),
			BuyerID:         buyer.UserID,
			PanchayatID:     req.PanchayatID,
			CropType:        req.CropType,
			DisposalMethod:  req.DisposalMethod,
			TotalQuantity:   alloc.Quantity,
			TotalAmount:     alloc.TotalAmount,
			AvgPricePerUnit: alloc.Offer.AvgPricePerUnit.Round(4),
			PaymentStatus:   domain.PaymentStatusPending,
			ListingCount:    len(alloc.Shares),
			CreatedAt:       now,
		}

		if err := tx.InsertPurchase(ctx, &purchase); err != nil {
			return persistenceErr("insert purchase", err)
		}

		// No payment gateway: settlement completes synchronously.
		purchase.PaymentStatus = domain.PaymentStatusCompleted
		purchase.CompletedAt = &now
		if err := tx.CompletePurchase(ctx, &purchase); err != nil {
			return persistenceErr("complete purchase", err)
		}

		distributions := make([]domain.FarmerPaymentDistribution, 0, len(alloc.Shares))
		for _, share := range alloc.Shares {
			dist := domain.FarmerPaymentDistribution{
				ID:            uuid.New().String(),
				PurchaseID:    purchase.ID,
				ListingID:     share.Listing.ID,
				FarmerID:      share.Listing.FarmerID,
				QuantityTons:  share.Quantity,
				PricePerTon:   purchase.AvgPricePerUnit,
				PaymentAmount: share.Amount,
				PaymentStatus: domain.PaymentStatusCompleted,
				CreatedAt:     now,
			}
			if err := tx.InsertDistribution(ctx, &dist); err != nil {
				return persistenceErr("insert distribution", err)
			}
			distributions = append(distributions, dist)
		}

		for _, share := range alloc.Shares {
			err := tx.ConsumeListing(ctx, share.Listing.ID, share.Listing.Version, share.Remaining, share.Status())
			if err != nil {
				return persistenceErr("consume listing", err)
			}
		}

		result = &SettlementResult{
			Purchase:      purchase,
			Distributions: distributions,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// persistenceErr classifies a store failure. Conflicts and validation errors
// keep their meaning; everything else is a persistence failure.
func persistenceErr(op string, err error) error {
	if errors.Is(err, domain.ErrConcurrencyConflict) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

func (s *settlementService) publishSettled(ctx context.Context, result *SettlementResult) {
	if s.bus == nil {
		return
	}

	event := eventbus.Event{
		ID:   result.Purchase.ID,
		Type: eventbus.EventTypePurchaseSettled,
		Payload: eventbus.PurchaseSettledEvent{
			Purchase:      result.Purchase,
			Distributions: result.Distributions,
		},
		Timestamp: s.now(),
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn(ctx, "Failed to publish settlement event",
			"error", err,
		)
	}
}

func (s *settlementService) GetPurchase(ctx context.Context, buyer domain.Identity, purchaseID string) (*SettlementResult, error) {
	if err := requireRole(buyer, domain.RoleBuyer); err != nil {
		return nil, err
	}

	ctx = logger.WithPurchaseID(ctx, purchaseID)

	var (
		purchase      *domain.BulkPurchase
		distributions []domain.FarmerPaymentDistribution
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchase, err = s.repo.GetPurchase(gctx, purchaseID)
		return err
	})
	g.Go(func() error {
		var err error
		distributions, err = s.repo.ListDistributions(gctx, purchaseID)
		return err
	})

	if err := g.Wait(); err != nil {
		if !errors.Is(err, domain.ErrPurchaseNotFound) {
			s.logger.Error(ctx, "Failed to load purchase",
				"error", err,
			)
		}
		return nil, err
	}

	if purchase.BuyerID != buyer.UserID {
		return nil, domain.ErrPurchaseNotFound
	}

	return &SettlementResult{
		Purchase:      *purchase,
		Distributions: distributions,
	}, nil
}

func (s *settlementService) ListPurchases(ctx context.Context, buyer domain.Identity) ([]domain.BulkPurchase, error) {
	if err := requireRole(buyer, domain.RoleBuyer); err != nil {
		return nil, err
	}

	purchases, err := s.repo.ListPurchasesByBuyer(ctx, buyer.UserID)
	if err != nil {
		s.logger.Error(ctx, "Failed to list purchases",
			"buyer_id", buyer.UserID,
			"error", err,
		)
		return nil, err
	}

	return purchases, nil
}
