package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Download represents a digital product in the catalog
type Download struct {
	ID                 int64           `db:"id" json:"id"`
	Title              string          `db:"title" json:"title"`
	Status             string          `db:"status" json:"status"`
	Price              decimal.Decimal `db:"price" json:"price"`
	VariablePricing    bool            `db:"variable_pricing" json:"variable_pricing"`
	VariablePricesJSON types.JSONText  `db:"variable_prices" json:"-"`
	FilesJSON          types.JSONText  `db:"files" json:"-"`
	Sales              int64           `db:"sales" json:"sales"`
	Earnings           decimal.Decimal `db:"earnings" json:"earnings"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// VariablePrice is one named price tier of a download
type VariablePrice struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// DownloadFile is a deliverable attached to a download. Condition holds the
// price id the file is limited to, or "all".
type DownloadFile struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
}

// VariablePrices decodes the variable price tiers. A malformed column yields no tiers.
func (d *Download) VariablePrices() []VariablePrice {
	var prices []VariablePrice
	if len(d.VariablePricesJSON) == 0 {
		return prices
	}
	if err := json.Unmarshal(d.VariablePricesJSON, &prices); err != nil {
		return nil
	}
	return prices
}

// SetVariablePrices encodes the variable price tiers
func (d *Download) SetVariablePrices(prices []VariablePrice) error {
	raw, err := json.Marshal(prices)
	if err != nil {
		return err
	}
	d.VariablePricesJSON = types.JSONText(raw)
	return nil
}

// Files decodes the download's file list
func (d *Download) Files() []DownloadFile {
	var files []DownloadFile
	if len(d.FilesJSON) == 0 {
		return files
	}
	if err := json.Unmarshal(d.FilesJSON, &files); err != nil {
		return nil
	}
	return files
}

// HasVariablePrices reports whether price tiers apply to this download
func (d *Download) HasVariablePrices() bool {
	return d.VariablePricing && len(d.VariablePrices()) > 0
}

// Discount represents a discount code
type Discount struct {
	ID               int64           `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Code             string          `db:"code" json:"code"`
	Status           string          `db:"status" json:"status"`
	Type             string          `db:"type" json:"type"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	ProductCondition string          `db:"product_condition" json:"product_condition"`
	ProductReqs      Int64Set        `db:"product_reqs" json:"product_reqs"`
	ExcludedProducts Int64Set        `db:"excluded_products" json:"excluded_products"`
	Uses             int64           `db:"uses" json:"uses"`
	MaxUses          int64           `db:"max_uses" json:"max_uses"`
	MinPrice         decimal.Decimal `db:"min_price" json:"min_price"`
	SingleUse        bool            `db:"single_use" json:"single_use"`
	StartsAt         *time.Time      `db:"starts_at" json:"starts_at,omitempty"`
	ExpiresAt        *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Customer represents a registered store account
type Customer struct {
	ID           int64     `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Payment is the durable record of a purchase
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	PurchaseKey  string          `db:"purchase_key" json:"purchase_key"`
	CustomerID   *int64          `db:"customer_id" json:"customer_id,omitempty"`
	Email        string          `db:"email" json:"email"`
	Gateway      string          `db:"gateway" json:"gateway"`
	Status       string          `db:"status" json:"status"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount     decimal.Decimal `db:"discount" json:"discount"`
	DiscountCode string          `db:"discount_code" json:"discount_code,omitempty"`
	FeeTotal     decimal.Decimal `db:"fee_total" json:"fee_total"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Currency     string          `db:"currency" json:"currency"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentItem is one cart line captured on a payment
type PaymentItem struct {
	ID         int64           `db:"id" json:"id"`
	PaymentID  int64           `db:"payment_id" json:"payment_id"`
	DownloadID int64           `db:"download_id" json:"download_id"`
	PriceID    *int            `db:"price_id" json:"price_id,omitempty"`
	Name       string          `db:"name" json:"name"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
}

// PaymentFee is a fee captured on a payment
type PaymentFee struct {
	ID        int64           `db:"id" json:"id"`
	PaymentID int64           `db:"payment_id" json:"payment_id"`
	FeeKey    string          `db:"fee_key" json:"fee_key"`
	Label     string          `db:"label" json:"label"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
}

// Download statuses
const (
	DownloadStatusPublished = "publish"
	DownloadStatusDraft     = "draft"
)

// Discount statuses, types and product conditions
const (
	DiscountStatusActive   = "active"
	DiscountStatusInactive = "inactive"

	DiscountTypeFlat    = "flat"
	DiscountTypePercent = "percent"

	ProductConditionAll = "all"
	ProductConditionAny = "any"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusComplete = "complete"
	PaymentStatusFailed   = "failed"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
