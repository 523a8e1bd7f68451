package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

const discountColumns = `id, name, code, status, type, amount, product_condition, product_reqs,
	excluded_products, uses, max_uses, min_price, single_use, starts_at, expires_at, created_at, updated_at`

// GetDiscountByCode retrieves a discount by its code, case-insensitively
func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	var d models.Discount
	err := s.db.GetContext(ctx, &d,
		"SELECT "+discountColumns+" FROM discounts WHERE UPPER(code) = UPPER($1)", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// HasCustomerUsedDiscount reports whether email has a completed payment with code
func (s *Store) HasCustomerUsedDiscount(ctx context.Context, code, email string) (bool, error) {
	var used bool
	err := s.db.GetContext(ctx, &used,
		`SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE UPPER(discount_code) = UPPER($1) AND LOWER(email) = LOWER($2) AND status = $3
		)`, code, email, models.PaymentStatusComplete)
	return used, err
}
