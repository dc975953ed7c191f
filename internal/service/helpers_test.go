package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/eventbus"
	"github.com/grachmannico95/residue-market-be/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testEpoch = time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)

	buyer     = domain.Identity{UserID: "buyer-1", Role: domain.RoleBuyer}
	farmerA   = domain.Identity{UserID: "farmer-a", Role: domain.RoleFarmer, PanchayatID: "panchayat-p"}
	official  = domain.Identity{UserID: "official-1", Role: domain.RolePanchayat, PanchayatID: "panchayat-p"}
	wheatSale = domain.OfferKey{
		PanchayatID:    "panchayat-p",
		CropType:       domain.CropTypeWheat,
		DisposalMethod: domain.DisposalMethodSellForProfit,
	}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func listing(id, farmerID, qty, unitPrice string, offset time.Duration) domain.ResidueListing {
	return domain.ResidueListing{
		ID:                 id,
		FarmerID:           farmerID,
		PanchayatID:        wheatSale.PanchayatID,
		CropType:           wheatSale.CropType,
		DisposalMethod:     wheatSale.DisposalMethod,
		Quantity:           dec(qty),
		OriginalQuantity:   dec(qty),
		PricePerUnit:       price(unitPrice),
		Status:             domain.ListingStatusAvailable,
		VerificationStatus: domain.VerificationApproved,
		Version:            1,
		CreatedAt:          testEpoch.Add(offset),
		UpdatedAt:          testEpoch.Add(offset),
	}
}

// scenarioListings is the three-farmer wheat offer: 10 t @ 2000, 5 t @ 2500, 15 t @ 1800.
func scenarioListings() []domain.ResidueListing {
	return []domain.ResidueListing{
		listing("listing-a", "farmer-a", "10", "2000", 0),
		listing("listing-b", "farmer-b", "5", "2500", time.Minute),
		listing("listing-c", "farmer-c", "15", "1800", 2*time.Minute),
	}
}

func seed(t *testing.T, repo domain.Repository, listings ...domain.ResidueListing) {
	t.Helper()
	for _, l := range listings {
		l := l
		require.NoError(t, repo.CreateListing(context.Background(), &l))
	}
}

type repoFactory func(t *testing.T) domain.Repository

func repositories() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(t *testing.T) domain.Repository {
			return storage.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) domain.Repository {
			store, err := storage.NewSQLiteStore(context.Background(), config.StorageConfig{
				Path:         filepath.Join(t.TempDir(), "market.db"),
				MaxOpenConns: 4,
				BusyTimeout:  10 * time.Second,
				PingTimeout:  time.Second,
			})
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

var errInjected = errors.New("injected write failure")

// faultyRepo decorates settlement transactions to inject failures.
type faultyRepo struct {
	domain.Repository
	failDistributionAt int
	conflicts          atomic.Int32
	txCount            atomic.Int32
}

func (r *faultyRepo) WithinTx(ctx context.Context, fn func(tx domain.SettlementTx) error) error {
	r.txCount.Add(1)
	return r.Repository.WithinTx(ctx, func(tx domain.SettlementTx) error {
		return fn(&faultyTx{SettlementTx: tx, repo: r})
	})
}

type faultyTx struct {
	domain.SettlementTx
	repo    *faultyRepo
	inserts int
}

func (t *faultyTx) InsertDistribution(ctx context.Context, dist *domain.FarmerPaymentDistribution) error {
	t.inserts++
	if t.inserts == t.repo.failDistributionAt {
		return errInjected
	}
	return t.SettlementTx.InsertDistribution(ctx, dist)
}

func (t *faultyTx) ConsumeListing(ctx context.Context, listingID string, expectedVersion int64, remaining decimal.Decimal, status domain.ListingStatus) error {
	if t.repo.conflicts.Load() > 0 {
		t.repo.conflicts.Add(-1)
		return domain.ErrConcurrencyConflict
	}
	return t.SettlementTx.ConsumeListing(ctx, listingID, expectedVersion, remaining, status)
}

type mockEventBus struct {
	mock.Mock
}

var _ eventbus.EventBus = (*mockEventBus)(nil)

func newMockEventBus(t *testing.T) *mockEventBus {
	m := &mockEventBus{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockEventBus) Publish(ctx context.Context, event eventbus.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockEventBus) Subscribe(eventType eventbus.EventType, consumer eventbus.Consumer) error {
	args := m.Called(eventType, consumer)
	return args.Error(0)
}

func (m *mockEventBus) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockEventBus) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockEventBus) Dropped() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func sumQuantities(dists []domain.FarmerPaymentDistribution) decimal.Decimal {
	total := decimal.Zero
	for _, d := range dists {
		total = total.Add(d.QuantityTons)
	}
	return total
}

func sumAmounts(dists []domain.FarmerPaymentDistribution) decimal.Decimal {
	total := decimal.Zero
	for _, d := range dists {
		total = total.Add(d.PaymentAmount)
	}
	return total
}
