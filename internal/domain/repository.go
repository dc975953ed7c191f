package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	// Listings
	CreateListing(ctx context.Context, listing *ResidueListing) error
	GetListing(ctx context.Context, listingID string) (*ResidueListing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]ResidueListing, error)
	UpdateVerification(ctx context.Context, listingID string, from, to VerificationStatus) error

	// Purchases
	GetPurchase(ctx context.Context, purchaseID string) (*BulkPurchase, error)
	ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]BulkPurchase, error)
	ListDistributions(ctx context.Context, purchaseID string) ([]FarmerPaymentDistribution, error)

	// Notifications. RecordNotifications stores the batch and marks eventID as
	// processed in one step; a repeated eventID returns ErrDuplicateEvent.
	RecordNotifications(ctx context.Context, eventID string, notifications []Notification) error
	ListNotifications(ctx context.Context, farmerID string) ([]Notification, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)

	// WithinTx runs fn in one atomic unit. Nothing fn wrote is visible
	// afterwards unless fn returns nil and the commit succeeds.
	WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error

	Close() error
}

// SettlementTx is the write scope of a single settlement.
type SettlementTx interface {
	// LockEligibleListings re-reads the eligible members of an offer inside the
	// transaction's lock scope.
	LockEligibleListings(ctx context.Context, key OfferKey) ([]ResidueListing, error)
	InsertPurchase(ctx context.Context, purchase *BulkPurchase) error
	CompletePurchase(ctx context.Context, purchase *BulkPurchase) error
	InsertDistribution(ctx context.Context, dist *FarmerPaymentDistribution) error
	// ConsumeListing sets the remaining quantity and status of a listing if its
	// version still equals expectedVersion, otherwise it returns ErrConcurrencyConflict.
	ConsumeListing(ctx context.Context, listingID string, expectedVersion int64, remaining decimal.Decimal, status ListingStatus) error
}
