package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/eventbus"
	"github.com/grachmannico95/residue-market-be/internal/storage"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSettlementConfig() SettlementConfig {
	return SettlementConfig{
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		Scales:         DefaultScales,
	}
}

func newSettlement(repo domain.Repository, bus eventbus.EventBus) SettlementService {
	return NewSettlementService(repo, bus, testSettlementConfig(), logger.NewNop())
}

func purchaseRequest(qty string) PurchaseRequest {
	return PurchaseRequest{OfferKey: wheatSale, Quantity: dec(qty)}
}

func assertUntouched(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()

	purchases, err := repo.ListPurchasesByBuyer(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.Empty(t, purchases)

	for _, want := range scenarioListings() {
		got, err := repo.GetListing(ctx, want.ID)
		require.NoError(t, err)
		assert.True(t, got.Quantity.Equal(want.Quantity), want.ID)
		assert.Equal(t, domain.ListingStatusAvailable, got.Status)
		assert.Equal(t, want.Version, got.Version)
	}
}

func TestSettlement_PurchaseTwelveTons(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seed(t, repo, scenarioListings()...)
			svc := newSettlement(repo, nil)
			ctx := context.Background()

			result, err := svc.Purchase(ctx, buyer, purchaseRequest("12"))
			require.NoError(t, err)

			p := result.Purchase
			assert.Equal(t, buyer.UserID, p.BuyerID)
			assert.Equal(t, domain.PaymentStatusCompleted, p.PaymentStatus)
			assert.NotNil(t, p.CompletedAt)
			assert.True(t, p.TotalQuantity.Equal(dec("12")))
			assert.True(t, p.TotalAmount.Equal(dec("23800")))
			assert.Equal(t, "1983.3333", p.AvgPricePerUnit.String())
			assert.Equal(t, 3, p.ListingCount)

			require.Len(t, result.Distributions, 3)
			assert.True(t, sumQuantities(result.Distributions).Equal(p.TotalQuantity))
			assert.True(t, sumAmounts(result.Distributions).Equal(p.TotalAmount))

			byFarmer := map[string]domain.FarmerPaymentDistribution{}
			for _, d := range result.Distributions {
				assert.Equal(t, domain.PaymentStatusCompleted, d.PaymentStatus)
				assert.Equal(t, p.ID, d.PurchaseID)
				byFarmer[d.FarmerID] = d
			}
			assert.True(t, byFarmer["farmer-a"].QuantityTons.Equal(dec("4")))
			assert.True(t, byFarmer["farmer-b"].QuantityTons.Equal(dec("2")))
			assert.True(t, byFarmer["farmer-c"].QuantityTons.Equal(dec("6")))

			remaining := map[string]string{"listing-a": "6", "listing-b": "3", "listing-c": "9"}
			for id, want := range remaining {
				got, err := repo.GetListing(ctx, id)
				require.NoError(t, err)
				assert.True(t, got.Quantity.Equal(dec(want)), "%s remaining %s", id, got.Quantity)
				assert.Equal(t, domain.ListingStatusAvailable, got.Status)
				assert.Equal(t, int64(2), got.Version)
			}

			stored, err := repo.ListDistributions(ctx, p.ID)
			require.NoError(t, err)
			assert.Len(t, stored, 3)
			assert.True(t, sumAmounts(stored).Equal(dec("23800")))

			offers, err := NewOfferService(repo, logger.NewNop()).ListOffers(ctx, domain.ListingFilter{})
			require.NoError(t, err)
			require.Len(t, offers, 1)
			assert.True(t, offers[0].TotalQuantity.Equal(dec("18")))
		})
	}
}

func TestSettlement_RejectsOverselling(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seed(t, repo, scenarioListings()...)
			svc := newSettlement(repo, nil)

			_, err := svc.Purchase(context.Background(), buyer, purchaseRequest("31"))
			assert.ErrorIs(t, err, domain.ErrValidation)

			assertUntouched(t, repo)
		})
	}
}

func TestSettlement_RequestValidation(t *testing.T) {
	repo := storage.NewMemoryStore()
	seed(t, repo, scenarioListings()...)
	svc := newSettlement(repo, nil)

	free := purchaseRequest("1")
	free.DisposalMethod = domain.DisposalMethodFreePickup

	unknownCrop := purchaseRequest("1")
	unknownCrop.CropType = "barley"

	noPanchayat := purchaseRequest("1")
	noPanchayat.PanchayatID = ""

	tests := []struct {
		name string
		req  PurchaseRequest
	}{
		{name: "zero quantity", req: purchaseRequest("0")},
		{name: "negative quantity", req: purchaseRequest("-2")},
		{name: "sub-kilogram precision", req: purchaseRequest("1.0005")},
		{name: "unpriced method", req: free},
		{name: "unknown crop", req: unknownCrop},
		{name: "missing panchayat", req: noPanchayat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Purchase(context.Background(), buyer, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assertUntouched(t, repo)
}

func TestSettlement_RequiresAuthenticatedBuyer(t *testing.T) {
	repo := storage.NewMemoryStore()
	seed(t, repo, scenarioListings()...)
	svc := newSettlement(repo, nil)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, domain.Identity{}, purchaseRequest("1"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Purchase(ctx, farmerA, purchaseRequest("1"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Purchase(ctx, official, purchaseRequest("1"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assertUntouched(t, repo)
}

func TestSettlement_SoldListingsLeaveTheOffer(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seed(t, repo, scenarioListings()...)
			svc := newSettlement(repo, nil)
			offers := NewOfferService(repo, logger.NewNop())
			ctx := context.Background()

			_, err := svc.Purchase(ctx, buyer, purchaseRequest("30"))
			require.NoError(t, err)

			for _, l := range scenarioListings() {
				got, err := repo.GetListing(ctx, l.ID)
				require.NoError(t, err)
				assert.True(t, got.Quantity.IsZero())
				assert.Equal(t, domain.ListingStatusSold, got.Status)
			}

			list, err := offers.ListOffers(ctx, domain.ListingFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = offers.GetOffer(ctx, wheatSale)
			assert.ErrorIs(t, err, domain.ErrOfferNotFound)

			_, err = svc.Purchase(ctx, buyer, purchaseRequest("1"))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestSettlement_FailedDistributionRollsBackEverything(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			base := newRepo(t)
			seed(t, base, scenarioListings()...)
			repo := &faultyRepo{Repository: base, failDistributionAt: 3}
			svc := newSettlement(repo, nil)

			_, err := svc.Purchase(context.Background(), buyer, purchaseRequest("12"))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPersistence)
			assert.ErrorIs(t, err, errInjected)
			assert.Equal(t, int32(1), repo.txCount.Load())

			assertUntouched(t, base)
		})
	}
}

func TestSettlement_RetriesConcurrencyConflict(t *testing.T) {
	base := storage.NewMemoryStore()
	seed(t, base, scenarioListings()...)
	repo := &faultyRepo{Repository: base}
	repo.conflicts.Store(2)
	svc := newSettlement(repo, nil)

	result, err := svc.Purchase(context.Background(), buyer, purchaseRequest("12"))
	require.NoError(t, err)
	assert.True(t, result.Purchase.TotalAmount.Equal(dec("23800")))
	assert.Equal(t, int32(3), repo.txCount.Load())

	purchases, err := base.ListPurchasesByBuyer(context.Background(), buyer.UserID)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestSettlement_ConflictSurfacesAfterMaxAttempts(t *testing.T) {
	base := storage.NewMemoryStore()
	seed(t, base, scenarioListings()...)
	repo := &faultyRepo{Repository: base}
	repo.conflicts.Store(100)
	svc := newSettlement(repo, nil)

	_, err := svc.Purchase(context.Background(), buyer, purchaseRequest("12"))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Equal(t, int32(3), repo.txCount.Load())

	assertUntouched(t, base)
}

func TestSettlement_ConcurrentBuyersNeverOversell(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seed(t, repo, scenarioListings()...)
			svc := newSettlement(repo, nil)
			ctx := context.Background()

			const buyers = 10
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				settled  []*SettlementResult
				rejected int
				other    []error
			)

			for i := 0; i < buyers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					result, err := svc.Purchase(ctx, buyer, purchaseRequest("5"))

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						settled = append(settled, result)
					case errors.Is(err, domain.ErrValidation):
						rejected++
					default:
						other = append(other, err)
					}
				}()
			}
			wg.Wait()

			require.Empty(t, other)
			assert.Len(t, settled, 6)
			assert.Equal(t, buyers-6, rejected)

			sold := decimal.Zero
			for _, r := range settled {
				sold = sold.Add(r.Purchase.TotalQuantity)
				assert.True(t, sumQuantities(r.Distributions).Equal(r.Purchase.TotalQuantity))
				assert.True(t, sumAmounts(r.Distributions).Equal(r.Purchase.TotalAmount))
			}
			assert.True(t, sold.Equal(dec("30")))

			for _, l := range scenarioListings() {
				got, err := repo.GetListing(ctx, l.ID)
				require.NoError(t, err)
				assert.False(t, got.Quantity.IsNegative())
				assert.True(t, got.Quantity.IsZero())
				assert.Equal(t, domain.ListingStatusSold, got.Status)
			}
		})
	}
}

func TestSettlement_PublishesSettledEvent(t *testing.T) {
	repo := storage.NewMemoryStore()
	seed(t, repo, scenarioListings()...)

	bus := newMockEventBus(t)
	bus.On("Publish", mock.Anything, mock.MatchedBy(func(e eventbus.Event) bool {
		payload, ok := e.Payload.(eventbus.PurchaseSettledEvent)
		return ok &&
			e.Type == eventbus.EventTypePurchaseSettled &&
			e.ID == payload.Purchase.ID &&
			len(payload.Distributions) == 3
	})).Return(nil).Once()

	svc := newSettlement(repo, bus)

	_, err := svc.Purchase(context.Background(), buyer, purchaseRequest("12"))
	require.NoError(t, err)
}

func TestSettlement_PublishFailureKeepsPurchase(t *testing.T) {
	repo := storage.NewMemoryStore()
	seed(t, repo, scenarioListings()...)

	bus := newMockEventBus(t)
	bus.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus closed")).Once()

	svc := newSettlement(repo, bus)

	result, err := svc.Purchase(context.Background(), buyer, purchaseRequest("12"))
	require.NoError(t, err)

	stored, err := repo.GetPurchase(context.Background(), result.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.PaymentStatus)
}

func TestSettlement_FailedPurchaseIsNotPublished(t *testing.T) {
	repo := storage.NewMemoryStore()
	seed(t, repo, scenarioListings()...)

	bus := newMockEventBus(t)
	svc := newSettlement(repo, bus)

	_, err := svc.Purchase(context.Background(), buyer, purchaseRequest("31"))
	require.ErrorIs(t, err, domain.ErrValidation)

	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestSettlement_PurchaseQueries(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seed(t, repo, scenarioListings()...)
			svc := newSettlement(repo, nil)
			ctx := context.Background()

			result, err := svc.Purchase(ctx, buyer, purchaseRequest("12"))
			require.NoError(t, err)

			got, err := svc.GetPurchase(ctx, buyer, result.Purchase.ID)
			require.NoError(t, err)
			assert.Equal(t, result.Purchase.ID, got.Purchase.ID)
			assert.Len(t, got.Distributions, 3)
			assert.True(t, sumAmounts(got.Distributions).Equal(got.Purchase.TotalAmount))

			stranger := domain.Identity{UserID: "buyer-2", Role: domain.RoleBuyer}
			_, err = svc.GetPurchase(ctx, stranger, result.Purchase.ID)
			assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)

			_, err = svc.GetPurchase(ctx, buyer, "missing")
			assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)

			_, err = svc.GetPurchase(ctx, farmerA, result.Purchase.ID)
			assert.ErrorIs(t, err, domain.ErrForbidden)

			mine, err := svc.ListPurchases(ctx, buyer)
			require.NoError(t, err)
			assert.Len(t, mine, 1)

			theirs, err := svc.ListPurchases(ctx, stranger)
			require.NoError(t, err)
			assert.Empty(t, theirs)
		})
	}
}
