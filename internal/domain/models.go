package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CropType string

const (
	CropTypeWheat     CropType = "wheat"
	CropTypeRice      CropType = "rice"
	CropTypeSugarcane CropType = "sugarcane"
	CropTypeCotton    CropType = "cotton"
	CropTypeMaize     CropType = "maize"
	CropTypeMustard   CropType = "mustard"
	CropTypeSoybean   CropType = "soybean"
	CropTypePulses    CropType = "pulses"
)

var cropTypes = map[CropType]struct{}{
	CropTypeWheat:     {},
	CropTypeRice:      {},
	CropTypeSugarcane: {},
	CropTypeCotton:    {},
	CropTypeMaize:     {},
	CropTypeMustard:   {},
	CropTypeSoybean:   {},
	CropTypePulses:    {},
}

func (c CropType) Valid() bool {
	_, ok := cropTypes[c]
	return ok
}

type DisposalMethod string

const (
	DisposalMethodSellForProfit  DisposalMethod = "sell_for_profit"
	DisposalMethodFreePickup     DisposalMethod = "free_pickup"
	DisposalMethodLocalRecycling DisposalMethod = "local_recycling"
)

func (m DisposalMethod) Valid() bool {
	switch m {
	case DisposalMethodSellForProfit, DisposalMethodFreePickup, DisposalMethodLocalRecycling:
		return true
	}
	return false
}

// Priced reports whether listings with this method carry a price per unit.
func (m DisposalMethod) Priced() bool {
	return m == DisposalMethodSellForProfit
}

type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusBooked    ListingStatus = "booked"
	ListingStatusDisposed  ListingStatus = "disposed"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type Role string

const (
	RoleFarmer    Role = "farmer"
	RolePanchayat Role = "panchayat"
	RoleBuyer     Role = "buyer"
)

// Identity is the authenticated caller. It is passed explicitly into services.
type Identity struct {
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	PanchayatID string `json:"panchayat_id,omitempty"`
}

type ResidueListing struct {
	ID                 string              `json:"id"`
	FarmerID           string              `json:"farmer_id"`
	PanchayatID        string              `json:"panchayat_id"`
	CropType           CropType            `json:"crop_type"`
	DisposalMethod     DisposalMethod      `json:"disposal_method"`
	Quantity           decimal.Decimal     `json:"quantity"`
	OriginalQuantity   decimal.Decimal     `json:"original_quantity"`
	PricePerUnit       decimal.NullDecimal `json:"price_per_unit"`
	Status             ListingStatus       `json:"status"`
	VerificationStatus VerificationStatus  `json:"verification_status"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Eligible reports whether the listing contributes to an aggregated offer.
func (l ResidueListing) Eligible() bool {
	if l.Status != ListingStatusAvailable ||
		l.VerificationStatus != VerificationApproved ||
		!l.Quantity.IsPositive() {
		return false
	}
	if l.DisposalMethod.Priced() {
		return l.PricePerUnit.Valid && l.PricePerUnit.Decimal.IsPositive()
	}
	return true
}

func (l ResidueListing) Key() OfferKey {
	return OfferKey{
		PanchayatID:    l.PanchayatID,
		CropType:       l.CropType,
		DisposalMethod: l.DisposalMethod,
	}
}

// OfferKey groups listings into one marketplace offer.
type OfferKey struct {
	PanchayatID    string         `json:"panchayat_id" validate:"required"`
	CropType       CropType       `json:"crop_type" validate:"required"`
	DisposalMethod DisposalMethod `json:"disposal_method" validate:"required"`
}

// AggregatedOffer is derived from eligible listings on every read and never stored.
type AggregatedOffer struct {
	OfferKey
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	FarmerCount   int             `json:"farmer_count"`
	ListingCount  int             `json:"listing_count"`
	// WeightedTotal is the sum of quantity x price over members; it keeps the
	// average exact when multiplied back by a purchased quantity.
	WeightedTotal   decimal.Decimal `json:"-"`
	AvgPricePerUnit decimal.Decimal `json:"avg_price_per_unit"`
	MinPricePerUnit decimal.Decimal `json:"min_price_per_unit"`
	MaxPricePerUnit decimal.Decimal `json:"max_price_per_unit"`
}

type BulkPurchase struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	PanchayatID     string          `json:"panchayat_id"`
	CropType        CropType        `json:"crop_type"`
	DisposalMethod  DisposalMethod  `json:"disposal_method"`
	TotalQuantity   decimal.Decimal `json:"total_quantity"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AvgPricePerUnit decimal.Decimal `json:"avg_price_per_unit"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ListingCount    int             `json:"listing_count"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

type FarmerPaymentDistribution struct {
	ID            string          `json:"id"`
	PurchaseID    string          `json:"purchase_id"`
	ListingID     string          `json:"listing_id"`
	FarmerID      string          `json:"farmer_id"`
	QuantityTons  decimal.Decimal `json:"quantity_tons"`
	PricePerTon   decimal.Decimal `json:"price_per_ton"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Notification struct {
	ID         string          `json:"id"`
	FarmerID   string          `json:"farmer_id"`
	PurchaseID string          `json:"purchase_id"`
	ListingID  string          `json:"listing_id"`
	Amount     decimal.Decimal `json:"amount"`
	Message    string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ListingFilter struct {
	FarmerID           string
	PanchayatID        string
	CropType           CropType
	DisposalMethod     DisposalMethod
	Status             ListingStatus
	VerificationStatus VerificationStatus
}

// EligibleFilter narrows a listing filter to the aggregation eligibility rule.
func EligibleFilter(key *OfferKey) ListingFilter {
	f := ListingFilter{
		Status:             ListingStatusAvailable,
		VerificationStatus: VerificationApproved,
	}
	if key != nil {
		f.PanchayatID = key.PanchayatID
		f.CropType = key.CropType
		f.DisposalMethod = key.DisposalMethod
	}
	return f
}
