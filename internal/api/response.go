package api

import (
	"storefront/internal/checkout"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// Every JSON reply carries ok, error_code and message, plus any extra fields.

func reply(c *gin.Context, status int, ok bool, code, message string, extra gin.H) {
	body := gin.H{
		"ok":         ok,
		"error_code": code,
		"message":    message,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func succeed(c *gin.Context, status int, message string, extra gin.H) {
	reply(c, status, true, "", message, extra)
}

func fail(c *gin.Context, status int, code, message string) {
	reply(c, status, false, code, message, nil)
}

type lineView struct {
	Key        string `json:"key"`
	DownloadID int64  `json:"download_id"`
	PriceID    *int   `json:"price_id,omitempty"`
	Title      string `json:"title"`
	PriceName  string `json:"price_name,omitempty"`
	Amount     string `json:"amount"`
}

type feeView struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type cartView struct {
	Items        []lineView `json:"items"`
	Quantity     int        `json:"quantity"`
	DiscountCode string     `json:"discount_code,omitempty"`
	Fees         []feeView  `json:"fees"`
	Subtotal     string     `json:"subtotal"`
	Discount     string     `json:"discount"`
	FeeTotal     string     `json:"fee_total"`
	Total        string     `json:"total"`
	TotalRaw     string     `json:"total_raw"`
}

// newCartView renders priced contents with shop formatted amounts
func newCartView(contents *service.CartContents, st *checkout.State, f checkout.Format) cartView {
	view := cartView{
		Items:    make([]lineView, 0, len(contents.Lines)),
		Quantity: st.Cart.Len(),
		Fees:     make([]feeView, 0, len(contents.Fees)),
		Subtotal: checkout.Money(contents.Totals.Subtotal, f),
		Discount: checkout.Money(contents.Totals.Discount, f),
		FeeTotal: checkout.Money(contents.Totals.FeeTotal, f),
		Total:    checkout.Money(contents.Totals.Total, f),
		TotalRaw: contents.Totals.Total.StringFixed(2),
	}
	if contents.Discount != nil {
		view.DiscountCode = contents.Discount.Code
	}
	for _, line := range contents.Lines {
		view.Items = append(view.Items, lineView{
			Key:        line.Item.Key,
			DownloadID: line.Item.DownloadID,
			PriceID:    line.Item.Options.PriceID,
			Title:      line.Title,
			PriceName:  line.PriceName,
			Amount:     checkout.Money(line.Amount, f),
		})
	}
	for _, fee := range contents.Fees {
		view.Fees = append(view.Fees, feeView{
			ID:     fee.Key,
			Label:  fee.Label,
			Amount: checkout.Money(fee.Amount, f),
		})
	}
	return view
}
