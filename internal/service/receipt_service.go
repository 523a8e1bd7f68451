package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/store"
)

// PurchaseReceipt is a recorded payment with its lines and fees
type PurchaseReceipt struct {
	Payment *models.Payment      `json:"payment"`
	Items   []models.PaymentItem `json:"items"`
	Fees    []models.PaymentFee  `json:"fees"`
}

// ReceiptService backs the purchase confirmation page
type ReceiptService struct {
	payments ReceiptRepository
}

// NewReceiptService creates a new receipt service
func NewReceiptService(payments ReceiptRepository) *ReceiptService {
	return &ReceiptService{payments: payments}
}

// Get loads the payment behind purchaseKey. A visitor can only read the
// receipt of the last purchase made from their own session.
func (s *ReceiptService) Get(ctx context.Context, st *checkout.State, purchaseKey string) (*PurchaseReceipt, error) {
	if purchaseKey == "" || st.LastPurchase == nil || st.LastPurchase.PurchaseKey != purchaseKey {
		return nil, ErrReceiptNotFound
	}

	payment, err := s.payments.GetPaymentByPurchaseKey(ctx, purchaseKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	items, err := s.payments.GetPaymentItems(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment items: %w", err)
	}
	fees, err := s.payments.GetPaymentFees(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment fees: %w", err)
	}

	return &PurchaseReceipt{Payment: payment, Items: items, Fees: fees}, nil
}
