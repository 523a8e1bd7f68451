package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDiscount(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	h.store.addDiscount(&models.Discount{Code: "FIVE", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(5)})
	st := newState()
	ctx := context.Background()

	_, err := h.cart.AddToCart(ctx, st, 1, nil)
	require.NoError(t, err)

	res, err := h.discounts.Apply(ctx, st, " five ", "")
	require.NoError(t, err)
	require.True(t, res.Applied())
	assert.Equal(t, "FIVE", st.DiscountCode)
	assert.Equal(t, "15.00", res.Contents.Totals.Total.StringFixed(2))

	assert.True(t, h.discounts.Remove(st))
	assert.Empty(t, st.DiscountCode)
	assert.False(t, h.discounts.Remove(st))
}

func TestApplyDiscountRejections(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		discount *models.Discount
		code     string
		email    string
		redeemed bool
		want     string
	}{
		{
			name: "unknown code",
			code: "NOPE",
			want: checkout.ErrCodeInvalidDiscount,
		},
		{
			name:     "expired",
			discount: &models.Discount{Code: "OLD", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(1), ExpiresAt: &past},
			code:     "OLD",
			want:     checkout.ErrCodeDiscountExpired,
		},
		{
			name:     "below minimum",
			discount: &models.Discount{Code: "BIG", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(1), MinPrice: decimal.NewFromInt(100)},
			code:     "BIG",
			want:     checkout.ErrCodeDiscountMinPrice,
		},
		{
			name: "requirement missing",
			discount: &models.Discount{
				Code: "BUNDLE", Type: models.DiscountTypePercent, Amount: decimal.NewFromInt(50),
				ProductCondition: models.ProductConditionAll, ProductReqs: models.Int64Set{1, 2},
			},
			code: "BUNDLE",
			want: checkout.ErrCodeDiscountProductReqs,
		},
		{
			name:     "single use already redeemed",
			discount: &models.Discount{Code: "ONCE", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(1), SingleUse: true},
			code:     "ONCE",
			email:    "buyer@example.com",
			redeemed: true,
			want:     checkout.ErrCodeDiscountUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.store.addDownload(1, "Theme", "20.00")
			if tt.discount != nil {
				h.store.addDiscount(tt.discount)
			}
			if tt.redeemed {
				h.store.redeemed[tt.code+"|"+tt.email] = true
			}
			st := newState()
			ctx := context.Background()
			_, err := h.cart.AddToCart(ctx, st, 1, nil)
			require.NoError(t, err)

			res, err := h.discounts.Apply(ctx, st, tt.code, tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.ErrorCode)
			assert.NotEmpty(t, res.Message)
			assert.Empty(t, st.DiscountCode)
			assert.False(t, st.Errors.Any())
		})
	}
}

func TestApplyDiscountToEmptyCart(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDiscount(&models.Discount{Code: "FIVE", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(5)})

	res, err := h.discounts.Apply(context.Background(), newState(), "FIVE", "")
	require.NoError(t, err)
	assert.Equal(t, checkout.ErrCodeEmptyCart, res.ErrorCode)
}
