package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/shopspring/decimal"
)

type CreateListingRequest struct {
	CropType       domain.CropType       `json:"crop_type" validate:"required"`
	DisposalMethod domain.DisposalMethod `json:"disposal_method" validate:"required"`
	Quantity       decimal.Decimal       `json:"quantity"`
	PricePerUnit   decimal.NullDecimal   `json:"price_per_unit"`
}

type ListingService interface {
	CreateListing(ctx context.Context, farmer domain.Identity, req CreateListingRequest) (*domain.ResidueListing, error)
	VerifyListing(ctx context.Context, official domain.Identity, listingID string, decision domain.VerificationStatus) (*domain.ResidueListing, error)
	ImportListings(ctx context.Context, official domain.Identity, reader io.Reader) (*ImportReport, error)
	ListListings(ctx context.Context, caller domain.Identity, filter domain.ListingFilter) ([]domain.ResidueListing, error)
}

type listingService struct {
	repo          domain.Repository
	quantityScale int32
	logger        *logger.Logger
	now           func() time.Time
}

func NewListingService(repo domain.Repository, quantityScale int32, log *logger.Logger) ListingService {
	if quantityScale <= 0 {
		quantityScale = DefaultScales.Quantity
	}

	return &listingService{
		repo:          repo,
		quantityScale: quantityScale,
		logger:        log,
		now:           time.Now,
	}
}

func requireRole(caller domain.Identity, role domain.Role) error {
	if caller.UserID == "" {
		return domain.ErrUnauthorized
	}
	if caller.Role != role {
		return fmt.Errorf("%w: %s required", domain.ErrForbidden, role)
	}
	return nil
}

// validateListing enforces the listing invariants shared by manual creation
// and CSV import.
func validateListing(crop domain.CropType, method domain.DisposalMethod, qty decimal.Decimal, price decimal.NullDecimal, scale int32) error {
	if !crop.Valid() {
		return fmt.Errorf("%w: unknown crop type %q", domain.ErrValidation, crop)
	}
	if !method.Valid() {
		return fmt.Errorf("%w: unknown disposal method %q", domain.ErrValidation, method)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be greater than zero", domain.ErrValidation)
	}
	if !qty.Equal(qty.Truncate(scale)) {
		return fmt.Errorf("%w: quantity supports at most %d decimal places", domain.ErrValidation, scale)
	}

	if method.Priced() {
		if !price.Valid || !price.Decimal.IsPositive() {
			return fmt.Errorf("%w: %s listings need a price greater than zero", domain.ErrValidation, method)
		}
		return nil
	}

	if price.Valid {
		return fmt.Errorf("%w: %s listings cannot carry a price", domain.ErrValidation, method)
	}
	return nil
}

func (s *listingService) newListing(farmerID, panchayatID string, crop domain.CropType, method domain.DisposalMethod, qty decimal.Decimal, price decimal.NullDecimal, verification domain.VerificationStatus) domain.ResidueListing {
	now := s.now().UTC()
	return domain.ResidueListing{
		ID:                 uuid.New().String(),
		FarmerID:           farmerID,
		PanchayatID:        panchayatID,
		CropType:           crop,
		DisposalMethod:     method,
		Quantity:           qty,
		OriginalQuantity:   qty,
		PricePerUnit:       price,
		Status:             domain.ListingStatusAvailable,
		VerificationStatus: verification,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *listingService) CreateListing(ctx context.Context, farmer domain.Identity, req CreateListingRequest) (*domain.ResidueListing, error) {
	if err := requireRole(farmer, domain.RoleFarmer); err != nil {
		return nil, err
	}

	ctx = logger.WithUserID(ctx, farmer.UserID)

	if farmer.PanchayatID == "" {
		return nil, fmt.Errorf("%w: farmer is not registered with a panchayat", domain.ErrValidation)
	}

	if err := validateListing(req.CropType, req.DisposalMethod, req.Quantity, req.PricePerUnit, s.quantityScale); err != nil {
		s.logger.Warn(ctx, "Rejected listing",
			"error", err,
		)
		return nil, err
	}

	listing := s.newListing(farmer.UserID, farmer.PanchayatID, req.CropType, req.DisposalMethod,
		req.Quantity, req.PricePerUnit, domain.VerificationPending)

	if err := s.repo.CreateListing(ctx, &listing); err != nil {
		s.logger.Error(ctx, "Failed to create listing",
			"error", err,
		)
		return nil, fmt.Errorf("%w: create listing: %w", domain.ErrPersistence, err)
	}

	s.logger.Info(ctx, "Listing created",
		"listing_id", listing.ID,
		"crop_type", listing.CropType,
		"quantity", listing.Quantity.String(),
	)

	return &listing, nil
}

func (s *listingService) VerifyListing(ctx context.Context, official domain.Identity, listingID string, decision domain.VerificationStatus) (*domain.ResidueListing, error) {
	if err := requireRole(official, domain.RolePanchayat); err != nil {
		return nil, err
	}

	if official.PanchayatID == "" {
		return nil, fmt.Errorf("%w: identity carries no panchayat", domain.ErrForbidden)
	}

	ctx = logger.WithUserID(ctx, official.UserID)

	if decision != domain.VerificationApproved && decision != domain.VerificationRejected {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", domain.ErrValidation)
	}

	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	// Listings of other panchayats are reported as missing.
	if listing.PanchayatID != official.PanchayatID {
		return nil, domain.ErrListingNotFound
	}

	if err := s.repo.UpdateVerification(ctx, listingID, domain.VerificationPending, decision); err != nil {
		s.logger.Warn(ctx, "Verification not applied",
			"listing_id", listingID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info(ctx, "Listing verified",
		"listing_id", listingID,
		"decision", decision,
	)

	return s.repo.GetListing(ctx, listingID)
}

func (s *listingService) ListListings(ctx context.Context, caller domain.Identity, filter domain.ListingFilter) ([]domain.ResidueListing, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthorized
	}

	switch caller.Role {
	case domain.RoleFarmer:
		filter.FarmerID = caller.UserID
	case domain.RolePanchayat:
		if caller.PanchayatID == "" {
			return nil, fmt.Errorf("%w: identity carries no panchayat", domain.ErrForbidden)
		}
		filter.PanchayatID = caller.PanchayatID
	default:
		return nil, fmt.Errorf("%w: %s cannot list listings", domain.ErrForbidden, caller.Role)
	}

	listings, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "Failed to list listings",
			"error", err,
		)
		return nil, err
	}

	return listings, nil
}
