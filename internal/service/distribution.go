package service

import (
	"fmt"
	"sort"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/shopspring/decimal"
)

// Share is the part of a bulk purchase attributed to one member listing.
type Share struct {
	Listing   domain.ResidueListing
	Quantity  decimal.Decimal
	Amount    decimal.Decimal
	Remaining decimal.Decimal
}

// Status is the listing status after the share is consumed.
func (s Share) Status() domain.ListingStatus {
	if s.Remaining.Sign() <= 0 {
		return domain.ListingStatusSold
	}
	return domain.ListingStatusAvailable
}

type Allocation struct {
	Offer       domain.AggregatedOffer
	Quantity    decimal.Decimal
	TotalAmount decimal.Decimal
	Shares      []Share
}

type Scales struct {
	Quantity int32
	Amount   int32
}

var DefaultScales = Scales{Quantity: 3, Amount: 2}

// Distribute splits quantity across the member listings of one offer in
// proportion to their remaining quantities. Every member except the last gets
// its proportional share truncated to the quantity scale and its amount rounded
// to the amount scale; the last member (the largest) absorbs both residuals so
// the shares add up to the purchased quantity and the total amount exactly.
func Distribute(members []domain.ResidueListing, quantity decimal.Decimal, scales Scales) (*Allocation, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", domain.ErrValidation)
	}
	if !quantity.Equal(quantity.Truncate(scales.Quantity)) {
		return nil, fmt.Errorf("%w: quantity supports at most %d decimal places", domain.ErrValidation, scales.Quantity)
	}

	offers := Aggregate(members)
	if len(offers) == 0 {
		return nil, fmt.Errorf("%w: no eligible listings for offer", domain.ErrValidation)
	}
	if len(offers) > 1 {
		return nil, fmt.Errorf("members span %d offers", len(offers))
	}
	offer := offers[0]

	if quantity.GreaterThan(offer.TotalQuantity) {
		return nil, fmt.Errorf("%w: requested %s exceeds available %s",
			domain.ErrValidation, quantity.String(), offer.TotalQuantity.String())
	}

	eligible := make([]domain.ResidueListing, 0, len(members))
	for _, m := range members {
		if m.Eligible() {
			eligible = append(eligible, m)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if cmp := a.Quantity.Cmp(b.Quantity); cmp != 0 {
			return cmp < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	shares := make([]Share, len(eligible))
	last := len(eligible) - 1
	assigned := decimal.Zero
	for i, m := range eligible {
		shares[i].Listing = m
		if i == last {
			break
		}
		q, _ := quantity.Mul(m.Quantity).QuoRem(offer.TotalQuantity, scales.Quantity)
		shares[i].Quantity = q
		assigned = assigned.Add(q)
	}
	shares[last].Quantity = quantity.Sub(assigned)

	spill(shares)

	totalAmount := AmountFor(offer, quantity, scales.Amount)
	paid := decimal.Zero
	for i := range shares {
		if i == last {
			shares[i].Amount = totalAmount.Sub(paid)
		} else {
			shares[i].Amount = AmountFor(offer, shares[i].Quantity, scales.Amount)
			paid = paid.Add(shares[i].Amount)
		}
		shares[i].Remaining = shares[i].Listing.Quantity.Sub(shares[i].Quantity)
	}

	if shares[last].Amount.IsNegative() {
		return nil, fmt.Errorf("residual amount %s is negative", shares[last].Amount.String())
	}

	return &Allocation{
		Offer:       offer,
		Quantity:    quantity,
		TotalAmount: totalAmount,
		Shares:      shares,
	}, nil
}

// spill moves any quantity the last share cannot hold onto earlier shares with
// spare capacity, largest listing first. Truncation only ever leaves spare
// capacity behind, so the excess always fits.
func spill(shares []Share) {
	last := len(shares) - 1
	excess := shares[last].Quantity.Sub(shares[last].Listing.Quantity)
	if !excess.IsPositive() {
		return
	}
	shares[last].Quantity = shares[last].Listing.Quantity

	for i := last - 1; i >= 0 && excess.IsPositive(); i-- {
		spare := shares[i].Listing.Quantity.Sub(shares[i].Quantity)
		if !spare.IsPositive() {
			continue
		}
		take := decimal.Min(spare, excess)
		shares[i].Quantity = shares[i].Quantity.Add(take)
		excess = excess.Sub(take)
	}
}
