package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// The service layer depends on these narrow views of storage. *store.Store
// satisfies all of them; tests substitute in-memory fakes.

// CatalogRepository reads downloads
type CatalogRepository interface {
	GetDownloadByID(ctx context.Context, id int64) (*models.Download, error)
	GetDownloadsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Download, error)
	ListDownloads(ctx context.Context) ([]models.Download, error)
}

// DiscountRepository reads discount codes and their redemption history
type DiscountRepository interface {
	GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	HasCustomerUsedDiscount(ctx context.Context, code, email string) (bool, error)
}

// CustomerRepository manages customer accounts
type CustomerRepository interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// PaymentRepository records payments
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *models.Payment, items []models.PaymentItem, fees []models.PaymentFee) error
}

// ReceiptRepository reads recorded payments back
type ReceiptRepository interface {
	GetPaymentByPurchaseKey(ctx context.Context, key string) (*models.Payment, error)
	GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error)
	GetPaymentFees(ctx context.Context, paymentID int64) ([]models.PaymentFee, error)
}

// StatsRepository applies purchase statistics once per event.
// RecordPurchaseStats marks the event and bumps every item in one
// transaction and reports false when the event was already applied.
type StatsRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	RecordPurchaseStats(ctx context.Context, eventID, eventType string, items []models.PaymentItemData) (bool, error)
}

// IdempotencyGuard rejects repeated purchase submissions
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// PaymentEventPublisher announces payment outcomes
type PaymentEventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}
