package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process. Settlement transactions are
// serialized and stage their writes until commit.
type MemoryStore struct {
	listings        map[string]domain.ResidueListing
	purchases       map[string]domain.BulkPurchase
	distributions   map[string][]domain.FarmerPaymentDistribution
	notifications   map[string][]domain.Notification
	processedEvents map[string]bool
	mu              sync.RWMutex
	txMu            sync.Mutex
	now             func() time.Time
}

var _ domain.Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:        make(map[string]domain.ResidueListing),
		purchases:       make(map[string]domain.BulkPurchase),
		distributions:   make(map[string][]domain.FarmerPaymentDistribution),
		notifications:   make(map[string][]domain.Notification),
		processedEvents: make(map[string]bool),
		now:             time.Now,
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreateListing(ctx context.Context, listing *domain.ResidueListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[listing.ID]; exists {
		return fmt.Errorf("listing %s already exists", listing.ID)
	}

	if listing.Version == 0 {
		listing.Version = 1
	}
	s.listings[listing.ID] = *listing

	return nil
}

func (s *MemoryStore) GetListing(ctx context.Context, listingID string) (*domain.ResidueListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, exists := s.listings[listingID]
	if !exists {
		return nil, domain.ErrListingNotFound
	}

	return &listing, nil
}

func matchesFilter(l domain.ResidueListing, f domain.ListingFilter) bool {
	switch {
	case f.FarmerID != "" && l.FarmerID != f.FarmerID:
		return false
	case f.PanchayatID != "" && l.PanchayatID != f.PanchayatID:
		return false
	case f.CropType != "" && l.CropType != f.CropType:
		return false
	case f.DisposalMethod != "" && l.DisposalMethod != f.DisposalMethod:
		return false
	case f.Status != "" && l.Status != f.Status:
		return false
	case f.VerificationStatus != "" && l.VerificationStatus != f.VerificationStatus:
		return false
	}
	return true
}

func sortListings(listings []domain.ResidueListing) {
	sort.Slice(listings, func(i, j int) bool {
		if !listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].CreatedAt.Before(listings[j].CreatedAt)
		}
		return listings[i].ID < listings[j].ID
	})
}

func (s *MemoryStore) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.ResidueListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterListings(filter), nil
}

// filterListings expects s.mu to be held.
func (s *MemoryStore) filterListings(filter domain.ListingFilter) []domain.ResidueListing {
	result := []domain.ResidueListing{}
	for _, l := range s.listings {
		if matchesFilter(l, filter) {
			result = append(result, l)
		}
	}
	sortListings(result)
	return result
}

func (s *MemoryStore) UpdateVerification(ctx context.Context, listingID string, from, to domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, exists := s.listings[listingID]
	if !exists {
		return domain.ErrListingNotFound
	}

	if listing.VerificationStatus != from {
		return fmt.Errorf("%w: listing is %s", domain.ErrInvalidTransition, listing.VerificationStatus)
	}

	listing.VerificationStatus = to
	listing.Version++
	listing.UpdatedAt = s.now().UTC()
	s.listings[listingID] = listing

	return nil
}

func (s *MemoryStore) GetPurchase(ctx context.Context, purchaseID string) (*domain.BulkPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchases[purchaseID]
	if !exists {
		return nil, domain.ErrPurchaseNotFound
	}

	return &purchase, nil
}

func (s *MemoryStore) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]domain.BulkPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.BulkPurchase{}
	for _, p := range s.purchases {
		if p.BuyerID == buyerID {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemoryStore) ListDistributions(ctx context.Context, purchaseID string) ([]domain.FarmerPaymentDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dists := s.distributions[purchaseID]
	result := make([]domain.FarmerPaymentDistribution, len(dists))
	copy(result, dists)

	return result, nil
}

func (s *MemoryStore) RecordNotifications(ctx context.Context, eventID string, notifications []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processedEvents[eventID] {
		return domain.ErrDuplicateEvent
	}

	for _, n := range notifications {
		s.notifications[n.FarmerID] = append(s.notifications[n.FarmerID], n)
	}
	s.processedEvents[eventID] = true

	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, farmerID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notifications[farmerID]
	result := make([]domain.Notification, len(notes))
	copy(result, notes)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.processedEvents[eventID], nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx domain.SettlementTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{
		store:    s,
		listings: make(map[string]domain.ResidueListing),
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return tx.commit()
}

type memoryTx struct {
	store         *MemoryStore
	listings      map[string]domain.ResidueListing
	expected      map[string]int64
	purchases     []domain.BulkPurchase
	distributions []domain.FarmerPaymentDistribution
}

func (tx *memoryTx) listing(id string) (domain.ResidueListing, bool) {
	if l, ok := tx.listings[id]; ok {
		return l, true
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	l, ok := tx.store.listings[id]
	return l, ok
}

func (tx *memoryTx) LockEligibleListings(ctx context.Context, key domain.OfferKey) ([]domain.ResidueListing, error) {
	tx.store.mu.RLock()
	committed := tx.store.filterListings(domain.EligibleFilter(&key))
	tx.store.mu.RUnlock()

	result := make([]domain.ResidueListing, 0, len(committed))
	for _, l := range committed {
		if staged, ok := tx.listings[l.ID]; ok {
			l = staged
		}
		if l.Eligible() {
			result = append(result, l)
		}
	}

	return result, nil
}

func (tx *memoryTx) InsertPurchase(ctx context.Context, purchase *domain.BulkPurchase) error {
	tx.purchases = append(tx.purchases, *purchase)
	return nil
}

func (tx *memoryTx) CompletePurchase(ctx context.Context, purchase *domain.BulkPurchase) error {
	for i := range tx.purchases {
		if tx.purchases[i].ID != purchase.ID {
			continue
		}
		if tx.purchases[i].PaymentStatus.Terminal() {
			return fmt.Errorf("%w: purchase is %s", domain.ErrInvalidTransition, tx.purchases[i].PaymentStatus)
		}
		tx.purchases[i].PaymentStatus = purchase.PaymentStatus
		tx.purchases[i].CompletedAt = purchase.CompletedAt
		return nil
	}
	return domain.ErrPurchaseNotFound
}

func (tx *memoryTx) InsertDistribution(ctx context.Context, dist *domain.FarmerPaymentDistribution) error {
	tx.distributions = append(tx.distributions, *dist)
	return nil
}

func (tx *memoryTx) ConsumeListing(ctx context.Context, listingID string, expectedVersion int64, remaining decimal.Decimal, status domain.ListingStatus) error {
	l, ok := tx.listing(listingID)
	if !ok {
		return domain.ErrListingNotFound
	}

	if l.Version != expectedVersion || l.Status != domain.ListingStatusAvailable {
		return domain.ErrConcurrencyConflict
	}

	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining quantity would be negative", domain.ErrValidation)
	}

	if tx.expected == nil {
		tx.expected = make(map[string]int64)
	}
	if _, seen := tx.expected[listingID]; !seen {
		tx.expected[listingID] = expectedVersion
	}

	l.Quantity = remaining
	l.Status = status
	l.Version++
	l.UpdatedAt = tx.store.now().UTC()
	tx.listings[listingID] = l

	return nil
}

func (tx *memoryTx) commit() error {
	s := tx.store

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range tx.expected {
		if current, ok := s.listings[id]; !ok || current.Version != version {
			return domain.ErrConcurrencyConflict
		}
	}

	for id, l := range tx.listings {
		s.listings[id] = l
	}
	for _, p := range tx.purchases {
		s.purchases[p.ID] = p
	}
	for _, d := range tx.distributions {
		s.distributions[d.PurchaseID] = append(s.distributions[d.PurchaseID], d)
	}

	return nil
}
