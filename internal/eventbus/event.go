package eventbus

import (
	"time"

	"github.com/grachmannico95/residue-market-be/internal/domain"
)

type EventType string

const (
	EventTypePurchaseSettled EventType = "purchase.settled"
)

type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// PurchaseSettledEvent is published once a settlement has committed.
type PurchaseSettledEvent struct {
	Purchase      domain.BulkPurchase                `json:"purchase"`
	Distributions []domain.FarmerPaymentDistribution `json:"distributions"`
}
