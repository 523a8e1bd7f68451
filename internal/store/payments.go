package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// CreatePayment inserts a payment with its items and fees in one transaction.
// A payment carrying a discount code also consumes one use of it; when the
// discount has no uses left nothing is written and ErrDiscountMaxed is
// returned.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment, items []models.PaymentItem, fees []models.PaymentFee) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if p.DiscountCode != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE discounts SET uses = uses + 1, updated_at = NOW()
			WHERE UPPER(code) = UPPER($1) AND (max_uses = 0 OR uses < max_uses)`,
			p.DiscountCode)
		if err != nil {
			return fmt.Errorf("failed to consume discount use: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("discount %q: %w", p.DiscountCode, ErrDiscountMaxed)
		}
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO payments (purchase_key, customer_id, email, gateway, status, subtotal, discount,
			discount_code, fee_total, total, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		p.PurchaseKey, p.CustomerID, p.Email, p.Gateway, p.Status, p.Subtotal, p.Discount,
		p.DiscountCode, p.FeeTotal, p.Total, p.Currency,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for i := range items {
		items[i].PaymentID = p.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO payment_items (payment_id, download_id, price_id, name, amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			p.ID, items[i].DownloadID, items[i].PriceID, items[i].Name, items[i].Amount,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert payment item: %w", err)
		}
	}

	for i := range fees {
		fees[i].PaymentID = p.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO payment_fees (payment_id, fee_key, label, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			p.ID, fees[i].FeeKey, fees[i].Label, fees[i].Amount,
		).Scan(&fees[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert payment fee: %w", err)
		}
	}

	return tx.Commit()
}

// GetPaymentByPurchaseKey retrieves a payment by its purchase key
func (s *Store) GetPaymentByPurchaseKey(ctx context.Context, key string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.GetContext(ctx, &p, "SELECT * FROM payments WHERE purchase_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentItems retrieves all items for a payment
func (s *Store) GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error) {
	var items []models.PaymentItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM payment_items WHERE payment_id = $1 ORDER BY id", paymentID)
	return items, err
}

// GetPaymentFees retrieves all fees for a payment
func (s *Store) GetPaymentFees(ctx context.Context, paymentID int64) ([]models.PaymentFee, error) {
	var fees []models.PaymentFee
	err := s.db.SelectContext(ctx, &fees,
		"SELECT * FROM payment_fees WHERE payment_id = $1 ORDER BY id", paymentID)
	return fees, err
}

