package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shareByListing(alloc *Allocation) map[string]Share {
	m := make(map[string]Share, len(alloc.Shares))
	for _, s := range alloc.Shares {
		m[s.Listing.ID] = s
	}
	return m
}

func TestDistribute_TwelveTonsFromThirty(t *testing.T) {
	alloc, err := Distribute(scenarioListings(), dec("12"), DefaultScales)
	require.NoError(t, err)

	assert.Equal(t, "23800.00", alloc.TotalAmount.StringFixed(2))
	require.Len(t, alloc.Shares, 3)

	// Largest listing absorbs the residuals.
	assert.Equal(t, "listing-c", alloc.Shares[2].Listing.ID)

	shares := shareByListing(alloc)
	assert.True(t, shares["listing-a"].Quantity.Equal(dec("4")))
	assert.True(t, shares["listing-b"].Quantity.Equal(dec("2")))
	assert.True(t, shares["listing-c"].Quantity.Equal(dec("6")))

	assert.True(t, shares["listing-a"].Amount.Equal(dec("7933.33")))
	assert.True(t, shares["listing-b"].Amount.Equal(dec("3966.67")))
	assert.True(t, shares["listing-c"].Amount.Equal(dec("11900")))

	assert.True(t, shares["listing-a"].Remaining.Equal(dec("6")))
	assert.True(t, shares["listing-b"].Remaining.Equal(dec("3")))
	assert.True(t, shares["listing-c"].Remaining.Equal(dec("9")))
	for _, s := range alloc.Shares {
		assert.Equal(t, domain.ListingStatusAvailable, s.Status())
	}
}

func TestDistribute_WholeOfferSellsEverything(t *testing.T) {
	alloc, err := Distribute(scenarioListings(), dec("30"), DefaultScales)
	require.NoError(t, err)

	assert.True(t, alloc.TotalAmount.Equal(dec("59500")))
	for _, s := range alloc.Shares {
		assert.True(t, s.Quantity.Equal(s.Listing.Quantity), s.Listing.ID)
		assert.True(t, s.Remaining.IsZero())
		assert.Equal(t, domain.ListingStatusSold, s.Status())
	}
}

func TestDistribute_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		members  []domain.ResidueListing
		quantity string
	}{
		{name: "exceeds available", members: scenarioListings(), quantity: "31"},
		{name: "zero", members: scenarioListings(), quantity: "0"},
		{name: "negative", members: scenarioListings(), quantity: "-1"},
		{name: "too precise", members: scenarioListings(), quantity: "1.0001"},
		{name: "no members", members: nil, quantity: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Distribute(tt.members, dec(tt.quantity), DefaultScales)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDistribute_ExactReconciliation(t *testing.T) {
	members := []domain.ResidueListing{
		listing("l1", "f1", "1", "1000", 0),
		listing("l2", "f2", "1", "1100", time.Minute),
		listing("l3", "f3", "1", "1200", 2*time.Minute),
		listing("l4", "f4", "7.777", "1333.33", 3*time.Minute),
		listing("l5", "f5", "0.013", "999.99", 4*time.Minute),
	}

	for _, q := range []string{"0.001", "0.5", "1", "2.999", "3.333", "7", "10.789", "10.79"} {
		t.Run(q, func(t *testing.T) {
			alloc, err := Distribute(members, dec(q), DefaultScales)
			require.NoError(t, err)

			qty := decimal.Zero
			amount := decimal.Zero
			for _, s := range alloc.Shares {
				qty = qty.Add(s.Quantity)
				amount = amount.Add(s.Amount)

				assert.False(t, s.Quantity.IsNegative(), s.Listing.ID)
				assert.False(t, s.Amount.IsNegative(), s.Listing.ID)
				assert.False(t, s.Remaining.IsNegative(), s.Listing.ID)
				assert.True(t, s.Quantity.Equal(s.Quantity.Truncate(3)), s.Listing.ID)
				assert.True(t, s.Amount.Equal(s.Amount.Round(2)), s.Listing.ID)
			}
			assert.True(t, qty.Equal(dec(q)), "quantities sum to %s, got %s", q, qty)
			assert.True(t, amount.Equal(alloc.TotalAmount), "amounts sum to %s, got %s", alloc.TotalAmount, amount)
		})
	}
}

func TestDistribute_Proportionality(t *testing.T) {
	members := []domain.ResidueListing{
		listing("small", "f1", "3", "1000", 0),
		listing("medium", "f2", "9", "1000", time.Minute),
		listing("large", "f3", "18", "1000", 2*time.Minute),
	}

	alloc, err := Distribute(members, dec("10"), DefaultScales)
	require.NoError(t, err)

	shares := shareByListing(alloc)
	tolerance := dec("0.001")
	for _, pair := range [][2]string{{"small", "medium"}, {"medium", "large"}, {"small", "large"}} {
		i, j := shares[pair[0]], shares[pair[1]]
		// q_i/q_j == quantity_i/quantity_j, compared cross-multiplied.
		lhs := i.Quantity.Mul(j.Listing.Quantity)
		rhs := j.Quantity.Mul(i.Listing.Quantity)
		diff := lhs.Sub(rhs).Abs()
		limit := tolerance.Mul(decimal.Max(i.Listing.Quantity, j.Listing.Quantity))
		assert.True(t, diff.LessThanOrEqual(limit), fmt.Sprintf("%s/%s off by %s", pair[0], pair[1], diff))
	}
}

func TestDistribute_SpillsExcessFromResidualListing(t *testing.T) {
	members := []domain.ResidueListing{
		listing("l1", "f1", "1", "100", 0),
		listing("l2", "f2", "1", "100", time.Minute),
		listing("l3", "f3", "1", "100", 2*time.Minute),
	}

	alloc, err := Distribute(members, dec("2.999"), DefaultScales)
	require.NoError(t, err)

	shares := shareByListing(alloc)
	assert.True(t, shares["l1"].Quantity.Equal(dec("0.999")))
	assert.True(t, shares["l2"].Quantity.Equal(dec("1")))
	assert.True(t, shares["l3"].Quantity.Equal(dec("1")))
	assert.Equal(t, domain.ListingStatusSold, shares["l3"].Status())
	assert.True(t, alloc.TotalAmount.Equal(dec("299.9")))
	assert.True(t, sumShareAmounts(alloc).Equal(alloc.TotalAmount))
}

func TestDistribute_TinyListingStillParticipates(t *testing.T) {
	members := []domain.ResidueListing{
		listing("tiny", "f1", "0.001", "1000", 0),
		listing("huge", "f2", "999.999", "1000", time.Minute),
	}

	alloc, err := Distribute(members, dec("1"), DefaultScales)
	require.NoError(t, err)

	require.Len(t, alloc.Shares, 2)
	shares := shareByListing(alloc)
	assert.True(t, shares["tiny"].Quantity.IsZero())
	assert.Equal(t, domain.ListingStatusAvailable, shares["tiny"].Status())
	assert.True(t, shares["huge"].Quantity.Equal(dec("1")))
}

func TestDistribute_CustomScales(t *testing.T) {
	alloc, err := Distribute(scenarioListings(), dec("7"), Scales{Quantity: 0, Amount: 0})
	require.NoError(t, err)

	for _, s := range alloc.Shares {
		assert.True(t, s.Quantity.Equal(s.Quantity.Truncate(0)))
	}
	assert.True(t, sumShareAmounts(alloc).Equal(alloc.TotalAmount))
}

func sumShareAmounts(alloc *Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, s := range alloc.Shares {
		total = total.Add(s.Amount)
	}
	return total
}
