package checkout

import (
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Totals is the priced summary of a cart
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	FeeTotal decimal.Decimal `json:"fee_total"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals prices a cart: the discount applies once to the pre-fee
// subtotal, fees are added afterwards, and the total never drops below zero.
// A nil discount applies nothing.
func ComputeTotals(lines []Line, discount *models.Discount, fees *Fees) Totals {
	subtotal := Subtotal(lines).Round(2)

	off := decimal.Zero
	if discount != nil {
		off = DiscountAmount(discount, subtotal)
	}

	feeTotal := fees.Total()
	total := subtotal.Sub(off).Add(feeTotal)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Discount: off,
		FeeTotal: feeTotal,
		Total:    total.Round(2),
	}
}

// CartDetail is one priced line as recorded on a purchase
type CartDetail struct {
	DownloadID int64           `json:"id"`
	Name       string          `json:"name"`
	PriceID    *int            `json:"price_id,omitempty"`
	PriceName  string          `json:"price_name,omitempty"`
	ItemPrice  decimal.Decimal `json:"item_price"`
	Quantity   int             `json:"quantity"`
}

// UserInfo is the buyer as recorded on a purchase
type UserInfo struct {
	CustomerID *int64 `json:"id,omitempty"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Discount   string `json:"discount,omitempty"`
}

// PurchaseData is everything handed to a gateway
type PurchaseData struct {
	Downloads    []int64             `json:"downloads"`
	CartDetails  []CartDetail        `json:"cart_details"`
	Fees         []Fee               `json:"fees"`
	Subtotal     decimal.Decimal     `json:"subtotal"`
	Discount     decimal.Decimal     `json:"discount"`
	DiscountCode string              `json:"discount_code,omitempty"`
	FeeTotal     decimal.Decimal     `json:"fee_total"`
	Price        decimal.Decimal     `json:"price"`
	Currency     string              `json:"currency"`
	PurchaseKey  string              `json:"purchase_key"`
	Email        string              `json:"user_email"`
	Date         time.Time           `json:"date"`
	UserInfo     UserInfo            `json:"user_info"`
	PostData     map[string][]string `json:"post_data"`
	Gateway      string              `json:"gateway"`
}

// BuildCartDetails converts priced lines into purchase lines
func BuildCartDetails(lines []Line) []CartDetail {
	details := make([]CartDetail, 0, len(lines))
	for _, line := range lines {
		details = append(details, CartDetail{
			DownloadID: line.Item.DownloadID,
			Name:       line.Title,
			PriceID:    line.Item.Options.PriceID,
			PriceName:  line.PriceName,
			ItemPrice:  line.Amount,
			Quantity:   1,
		})
	}
	return details
}
