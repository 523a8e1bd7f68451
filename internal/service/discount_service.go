package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DiscountService validates and applies discount codes
type DiscountService struct {
	discounts DiscountRepository
	cart      *CartService
	now       func() time.Time
	logger    *zap.Logger
}

// NewDiscountService creates a new discount service
func NewDiscountService(discounts DiscountRepository, cart *CartService) *DiscountService {
	return &DiscountService{
		discounts: discounts,
		cart:      cart,
		now:       time.Now,
		logger:    util.Named("discount"),
	}
}

// Validate looks a code up and runs every rule against a cart. It returns
// the discount when it applies, or an error code explaining why not. The
// single-use rule only runs when email is known.
func (s *DiscountService) Validate(ctx context.Context, code string, downloads []int64, subtotal decimal.Decimal, email string) (*models.Discount, string, error) {
	code = checkout.NormalizeCode(code)
	if code == "" {
		return nil, checkout.ErrCodeInvalidDiscount, nil
	}
	if len(downloads) == 0 {
		return nil, checkout.ErrCodeEmptyCart, nil
	}

	d, err := s.discounts.GetDiscountByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, checkout.ErrCodeInvalidDiscount, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load discount: %w", err)
	}

	validator := checkout.NewDiscountValidator(d, downloads, email, subtotal)
	result, err := validator.Check(s.now())
	if err != nil {
		return nil, "", err
	}
	if result != "" {
		return d, result, nil
	}

	result, err = validator.CheckSingleUse(func(code, user string) (bool, error) {
		return s.discounts.HasCustomerUsedDiscount(ctx, code, user)
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to check discount usage: %w", err)
	}
	return d, result, nil
}

// DiscountResult is the outcome of applying a code to the cart
type DiscountResult struct {
	// ErrorCode is empty when the code was applied
	ErrorCode string
	Message   string
	Discount  *models.Discount
	Contents  *CartContents
}

// Applied reports whether the code is now active on the cart
func (r *DiscountResult) Applied() bool {
	return r.ErrorCode == ""
}

// Apply validates code against the cart and makes it the cart's single
// active discount. A rejected code leaves the state untouched.
func (s *DiscountService) Apply(ctx context.Context, st *checkout.State, code, email string) (*DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Apply")
	defer span.End()

	contents, err := s.cart.Contents(ctx, st)
	if err != nil {
		return nil, err
	}

	d, errCode, err := s.Validate(ctx, code, st.Cart.DownloadIDs(), contents.Totals.Subtotal, email)
	if err != nil {
		return nil, err
	}

	if errCode != "" {
		util.DiscountsAppliedTotal.WithLabelValues(errCode).Inc()
		s.logger.Info("discount rejected",
			zap.String("code", checkout.NormalizeCode(code)),
			zap.String("reason", errCode))
		return &DiscountResult{
			ErrorCode: errCode,
			Message:   s.message(errCode, d),
			Contents:  contents,
		}, nil
	}

	st.DiscountCode = d.Code
	st.Errors.Unset(checkout.ErrCodeInvalidDiscount)
	util.DiscountsAppliedTotal.WithLabelValues("applied").Inc()

	contents.Discount = d
	contents.Totals = checkout.ComputeTotals(contents.Lines, d, &st.Fees)

	return &DiscountResult{
		Message:  "Discount applied.",
		Discount: d,
		Contents: contents,
	}, nil
}

// Remove clears the active discount
func (s *DiscountService) Remove(st *checkout.State) bool {
	if st.DiscountCode == "" {
		return false
	}
	st.DiscountCode = ""
	return true
}

func (s *DiscountService) message(code string, d *models.Discount) string {
	if code == checkout.ErrCodeEmptyCart {
		return "Your cart is empty."
	}
	return checkout.DiscountMessage(code, d, s.cart.Format())
}
