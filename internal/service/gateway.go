package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManualGatewayID is the gateway that records a purchase without taking money
const ManualGatewayID = "manual"

// GatewayResult is what a gateway hands back after processing a purchase
type GatewayResult struct {
	PaymentID int64
	// RedirectURL overrides the default success page when set
	RedirectURL string
}

// Gateway processes a validated purchase
type Gateway interface {
	ID() string
	Label() string
	Process(ctx context.Context, data *checkout.PurchaseData) (*GatewayResult, error)
}

// GatewayRegistry holds the registered gateways and which of them the shop enables
type GatewayRegistry struct {
	gateways map[string]Gateway
	enabled  map[string]bool
}

// NewGatewayRegistry creates a registry with the given gateway ids enabled
func NewGatewayRegistry(enabled []string) *GatewayRegistry {
	r := &GatewayRegistry{
		gateways: make(map[string]Gateway),
		enabled:  make(map[string]bool, len(enabled)),
	}
	for _, id := range enabled {
		if id != "" {
			r.enabled[id] = true
		}
	}
	return r
}

// Register adds a gateway, replacing any gateway with the same id
func (r *GatewayRegistry) Register(g Gateway) {
	r.gateways[g.ID()] = g
}

// Get returns a registered gateway regardless of whether it is enabled
func (r *GatewayRegistry) Get(id string) (Gateway, bool) {
	g, ok := r.gateways[id]
	return g, ok
}

// Enabled reports whether id is registered and enabled
func (r *GatewayRegistry) Enabled(id string) bool {
	_, ok := r.gateways[id]
	return ok && r.enabled[id]
}

// GatewayOption is one gateway choice on the checkout form
type GatewayOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Options lists the enabled gateways with their labels, sorted by id
func (r *GatewayRegistry) Options() []GatewayOption {
	ids := r.EnabledIDs()
	out := make([]GatewayOption, 0, len(ids))
	for _, id := range ids {
		out = append(out, GatewayOption{ID: id, Label: r.gateways[id].Label()})
	}
	return out
}

// EnabledIDs lists the usable gateway ids in sorted order
func (r *GatewayRegistry) EnabledIDs() []string {
	ids := make([]string, 0, len(r.enabled))
	for id := range r.enabled {
		if _, ok := r.gateways[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ManualGateway completes purchases immediately. It is used for free carts
// and for shops that take payment offline.
type ManualGateway struct {
	payments  PaymentRepository
	publisher PaymentEventPublisher
	logger    *zap.Logger
}

// NewManualGateway creates the manual gateway. publisher may be nil.
func NewManualGateway(payments PaymentRepository, publisher PaymentEventPublisher) *ManualGateway {
	return &ManualGateway{
		payments:  payments,
		publisher: publisher,
		logger:    util.Named("gateway.manual"),
	}
}

func (g *ManualGateway) ID() string    { return ManualGatewayID }
func (g *ManualGateway) Label() string { return "Free / offline purchase" }

// Process records a complete payment with its items and fees, then announces it
func (g *ManualGateway) Process(ctx context.Context, data *checkout.PurchaseData) (*GatewayResult, error) {
	ctx, span := util.StartSpan(ctx, "ManualGateway.Process")
	defer span.End()

	payment := &models.Payment{
		PurchaseKey:  data.PurchaseKey,
		CustomerID:   data.UserInfo.CustomerID,
		Email:        data.Email,
		Gateway:      ManualGatewayID,
		Status:       models.PaymentStatusComplete,
		Subtotal:     data.Subtotal,
		Discount:     data.Discount,
		DiscountCode: data.DiscountCode,
		FeeTotal:     data.FeeTotal,
		Total:        data.Price,
		Currency:     data.Currency,
	}

	items := make([]models.PaymentItem, 0, len(data.CartDetails))
	eventItems := make([]models.PaymentItemData, 0, len(data.CartDetails))
	for _, line := range data.CartDetails {
		name := line.Name
		if line.PriceName != "" {
			name = fmt.Sprintf("%s - %s", line.Name, line.PriceName)
		}
		items = append(items, models.PaymentItem{
			DownloadID: line.DownloadID,
			PriceID:    line.PriceID,
			Name:       name,
			Amount:     line.ItemPrice,
		})
		eventItems = append(eventItems, models.PaymentItemData{
			DownloadID: line.DownloadID,
			PriceID:    line.PriceID,
			Amount:     line.ItemPrice,
		})
	}

	fees := make([]models.PaymentFee, 0, len(data.Fees))
	for _, fee := range data.Fees {
		fees = append(fees, models.PaymentFee{FeeKey: fee.Key, Label: fee.Label, Amount: fee.Amount})
	}

	if err := g.payments.CreatePayment(ctx, payment, items, fees); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	g.logger.Info("payment recorded",
		zap.Int64("payment_id", payment.ID),
		zap.String("purchase_key", payment.PurchaseKey),
		zap.String("total", payment.Total.StringFixed(2)))

	if g.publisher != nil {
		event := &models.PaymentCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentCompleted,
				Timestamp: time.Now(),
			},
			PaymentID:    payment.ID,
			PurchaseKey:  payment.PurchaseKey,
			Email:        payment.Email,
			Gateway:      payment.Gateway,
			Total:        payment.Total,
			DiscountCode: payment.DiscountCode,
			Items:        eventItems,
		}
		// The payment is durable at this point; a lost event only delays stats.
		if err := g.publisher.PublishPaymentCompleted(ctx, event); err != nil {
			g.logger.Error("failed to publish payment completed event",
				zap.Int64("payment_id", payment.ID),
				zap.Error(err))
		}
	}

	return &GatewayResult{PaymentID: payment.ID}, nil
}
