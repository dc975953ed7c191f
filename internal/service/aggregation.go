package service

import (
	"context"
	"sort"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/shopspring/decimal"
)

// Aggregate groups the eligible listings by (panchayat, crop type, disposal
// method). Ineligible listings are ignored, so groups without members never
// appear. Offers are ordered by total quantity, largest first.
func Aggregate(listings []domain.ResidueListing) []domain.AggregatedOffer {
	type group struct {
		offer   domain.AggregatedOffer
		farmers map[string]struct{}
		priced  bool
	}

	groups := make(map[domain.OfferKey]*group)
	order := make([]domain.OfferKey, 0)

	for _, l := range listings {
		if !l.Eligible() {
			continue
		}

		key := l.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{
				offer:   domain.AggregatedOffer{OfferKey: key},
				farmers: make(map[string]struct{}),
			}
			groups[key] = g
			order = append(order, key)
		}

		g.offer.TotalQuantity = g.offer.TotalQuantity.Add(l.Quantity)
		g.offer.ListingCount++
		g.farmers[l.FarmerID] = struct{}{}

		if !key.DisposalMethod.Priced() {
			continue
		}

		price := l.PricePerUnit.Decimal
		g.offer.WeightedTotal = g.offer.WeightedTotal.Add(l.Quantity.Mul(price))
		if !g.priced || price.LessThan(g.offer.MinPricePerUnit) {
			g.offer.MinPricePerUnit = price
		}
		if !g.priced || price.GreaterThan(g.offer.MaxPricePerUnit) {
			g.offer.MaxPricePerUnit = price
		}
		g.priced = true
	}

	offers := make([]domain.AggregatedOffer, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.offer.FarmerCount = len(g.farmers)
		if g.priced {
			g.offer.AvgPricePerUnit = g.offer.WeightedTotal.Div(g.offer.TotalQuantity)
		}
		offers = append(offers, g.offer)
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if cmp := offers[i].TotalQuantity.Cmp(offers[j].TotalQuantity); cmp != 0 {
			return cmp > 0
		}
		return keyLess(offers[i].OfferKey, offers[j].OfferKey)
	})

	return offers
}

func keyLess(a, b domain.OfferKey) bool {
	if a.PanchayatID != b.PanchayatID {
		return a.PanchayatID < b.PanchayatID
	}
	if a.CropType != b.CropType {
		return a.CropType < b.CropType
	}
	return a.DisposalMethod < b.DisposalMethod
}

// AmountFor prices a quantity at the offer's weighted average. Multiplying
// before dividing keeps the result exact whenever the true value is.
func AmountFor(offer domain.AggregatedOffer, quantity decimal.Decimal, scale int32) decimal.Decimal {
	if offer.TotalQuantity.IsZero() {
		return decimal.Zero
	}
	return quantity.Mul(offer.WeightedTotal).DivRound(offer.TotalQuantity, scale)
}

type OfferService interface {
	ListOffers(ctx context.Context, filter domain.ListingFilter) ([]domain.AggregatedOffer, error)
	GetOffer(ctx context.Context, key domain.OfferKey) (*domain.AggregatedOffer, error)
}

type offerService struct {
	repo   domain.Repository
	logger *logger.Logger
}

func NewOfferService(repo domain.Repository, log *logger.Logger) OfferService {
	return &offerService{
		repo:   repo,
		logger: log,
	}
}

// ListOffers recomputes the view from current listing state on every call.
func (s *offerService) ListOffers(ctx context.Context, filter domain.ListingFilter) ([]domain.AggregatedOffer, error) {
	filter.Status = domain.ListingStatusAvailable
	filter.VerificationStatus = domain.VerificationApproved
	filter.FarmerID = ""

	listings, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "Failed to list eligible listings",
			"error", err,
		)
		return nil, err
	}

	offers := Aggregate(listings)

	s.logger.Debug(ctx, "Offers aggregated",
		"listings", len(listings),
		"offers", len(offers),
	)

	return offers, nil
}

func (s *offerService) GetOffer(ctx context.Context, key domain.OfferKey) (*domain.AggregatedOffer, error) {
	offers, err := s.ListOffers(ctx, domain.EligibleFilter(&key))
	if err != nil {
		return nil, err
	}

	for i := range offers {
		if offers[i].OfferKey == key {
			return &offers[i], nil
		}
	}

	return nil, domain.ErrOfferNotFound
}
