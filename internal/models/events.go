package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentCompletedEvent published when a gateway completes a payment
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID    int64             `json:"payment_id"`
	PurchaseKey  string            `json:"purchase_key"`
	Email        string            `json:"email"`
	Gateway      string            `json:"gateway"`
	Total        decimal.Decimal   `json:"total"`
	DiscountCode string            `json:"discount_code,omitempty"`
	Items        []PaymentItemData `json:"items"`
}

// PaymentFailedEvent published when a gateway rejects a purchase
type PaymentFailedEvent struct {
	BaseEvent
	PurchaseKey string `json:"purchase_key"`
	Gateway     string `json:"gateway"`
	Reason      string `json:"reason"`
}

// PaymentItemData represents item data in events
type PaymentItemData struct {
	DownloadID int64           `json:"download_id"`
	PriceID    *int            `json:"price_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}
