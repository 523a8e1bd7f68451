package checkout

import (
	"testing"

	"storefront/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	sess := session.New("visitor")

	st, err := LoadState(sess)
	require.NoError(t, err)
	assert.True(t, st.Cart.IsEmpty())
	assert.NotNil(t, st.Errors)

	key, _ := st.AddToCart(12, Options{PriceID: priceID(2)})
	st.DiscountCode = "SAVE10"
	_, err = st.Fees.Add(decimal.RequireFromString("-1.25"), "Credit", "")
	require.NoError(t, err)
	st.Errors.Set(ErrCodeAgreeToTerms, "You must agree to the terms of use")
	st.CustomerID = 42
	st.LastPurchase = &Receipt{PaymentID: 7, PurchaseKey: "abc", Gateway: "manual", Total: "10.00"}
	require.NoError(t, st.Store(sess))

	loaded, err := LoadState(sess)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Cart.Len())
	assert.Equal(t, key, loaded.Cart.Items[0].Key)
	assert.Equal(t, 2, *loaded.Cart.Items[0].Options.PriceID)
	assert.Equal(t, "SAVE10", loaded.DiscountCode)
	assert.Equal(t, "-1.25", loaded.Fees.Total().StringFixed(2))
	assert.True(t, loaded.Errors.Has(ErrCodeAgreeToTerms))
	assert.Equal(t, int64(42), loaded.CustomerID)
	require.NotNil(t, loaded.LastPurchase)
	assert.Equal(t, "abc", loaded.LastPurchase.PurchaseKey)
}

func TestStateStoreUnsetsEmptyParts(t *testing.T) {
	sess := session.New("visitor")
	st, _ := LoadState(sess)
	st.AddToCart(1, Options{})
	st.DiscountCode = "X"
	require.NoError(t, st.Store(sess))

	st.EmptyCart()
	require.NoError(t, st.Store(sess))

	assert.Empty(t, sess.Keys())
}

func TestAddToCartClearsErrors(t *testing.T) {
	st, _ := LoadState(session.New("visitor"))
	st.Errors.Set(ErrCodeInvalidEmail, "bad")

	st.AddToCart(1, Options{})
	assert.False(t, st.Errors.Any())
}

func TestErrorsCodesSorted(t *testing.T) {
	errs := Errors{}
	errs.Set("b", "2")
	errs.Set("a", "1")
	errs.Merge(Errors{"c": "3"})
	errs.Unset("b")

	assert.Equal(t, []string{"a", "c"}, errs.Codes())
	errs.Clear()
	assert.False(t, errs.Any())
}
