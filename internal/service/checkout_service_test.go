package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"storefront/config"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/nonce"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSession = "sess-1"

func purchaseForm(h *harness, fields map[string]string) url.Values {
	form := url.Values{}
	form.Set(FieldPurchaseNonce, h.nonces.Create(nonce.ActionPurchase, testSession))
	for k, v := range fields {
		form.Set(k, v)
	}
	return form
}

func guestFields() map[string]string {
	return map[string]string{
		"edd_email": "buyer@example.com",
		"edd_first": "Grace",
		"edd_last":  "Hopper",
	}
}

func cartWith(t *testing.T, h *harness, ids ...int64) *checkout.State {
	t.Helper()
	st := newState()
	for _, id := range ids {
		_, err := h.cart.AddToCart(context.Background(), st, id, nil)
		require.NoError(t, err)
	}
	return st
}

func TestProcessPurchaseIgnoresBadNonce(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)

	form := purchaseForm(h, guestFields())
	form.Set(FieldPurchaseNonce, "forged")

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, form)
	require.NoError(t, err)
	assert.Equal(t, CheckoutIgnored, res.Status)
	assert.False(t, st.Errors.Any())
	assert.Equal(t, 1, st.Cart.Len())
	assert.Empty(t, h.store.payments)
}

func TestProcessPurchaseAccumulatesErrors(t *testing.T) {
	h := newHarness(t, func(shop *config.ShopConfig) { shop.RequireTerms = true })
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)

	fields := guestFields()
	fields[FieldDiscount] = "BOGUS"
	fields[FieldGateway] = ManualGatewayID

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, fields))
	require.NoError(t, err)

	assert.Equal(t, CheckoutInvalid, res.Status)
	assert.Equal(t, "/checkout?payment-mode=manual", res.RedirectURL)
	assert.True(t, st.Errors.Has(checkout.ErrCodeInvalidDiscount))
	assert.True(t, st.Errors.Has(checkout.ErrCodeAgreeToTerms))
	assert.ElementsMatch(t, []string{checkout.ErrCodeInvalidDiscount, checkout.ErrCodeAgreeToTerms}, res.Errors)

	// A failed attempt leaves the cart alone.
	assert.Equal(t, 1, st.Cart.Len())
	assert.Empty(t, h.store.payments)
}

func TestProcessPurchaseValidationCases(t *testing.T) {
	tests := []struct {
		name   string
		shop   func(*config.ShopConfig)
		cart   []int64
		fields map[string]string
		want   []string
	}{
		{
			name:   "empty cart",
			fields: guestFields(),
			want:   []string{checkout.ErrCodeEmptyCart},
		},
		{
			name:   "guest without email",
			cart:   []int64{1},
			fields: map[string]string{"edd_first": "Grace"},
			want:   []string{checkout.ErrCodeInvalidEmail},
		},
		{
			name:   "guests not allowed",
			shop:   func(s *config.ShopConfig) { s.AllowGuest = false },
			cart:   []int64{1},
			fields: guestFields(),
			want:   []string{checkout.ErrCodeRegistrationRequired},
		},
		{
			name: "disabled gateway",
			cart: []int64{1},
			fields: map[string]string{
				"edd_email": "buyer@example.com", "edd_first": "Grace", FieldGateway: "paypal",
			},
			want: []string{checkout.ErrCodeInvalidGateway},
		},
		{
			name: "registration mismatch",
			cart: []int64{1},
			fields: map[string]string{
				"edd-purchase-var":      checkout.PurchaseVarRegister,
				"edd_user_login":        "grace",
				"edd_email":             "grace@example.com",
				"edd_first":             "Grace",
				"edd_user_pass":         "one",
				"edd_user_pass_confirm": "two",
			},
			want: []string{checkout.ErrCodePasswordMismatch},
		},
		{
			name: "login unknown user",
			cart: []int64{1},
			fields: map[string]string{
				"edd-purchase-var": checkout.PurchaseVarLogin,
				"edd_user_login":   "nobody",
				"edd_user_pass":    "secret",
			},
			want: []string{checkout.ErrCodeUsernameIncorrect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.shop)
			h.store.addDownload(1, "Theme", "20.00")
			st := cartWith(t, h, tt.cart...)

			res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, tt.fields))
			require.NoError(t, err)
			assert.Equal(t, CheckoutInvalid, res.Status)
			assert.ElementsMatch(t, tt.want, res.Errors)
		})
	}
}

func TestProcessPurchaseGuestCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	h.store.addDiscount(&models.Discount{Code: "FIVE", Type: models.DiscountTypeFlat, Amount: decimal.NewFromInt(5)})
	st := cartWith(t, h, 1)
	_, err := h.cart.AddFee(st, "1.50", "Handling", "")
	require.NoError(t, err)
	st.DiscountCode = "FIVE"
	st.Errors.Set("stale", "left over")

	fields := guestFields()
	fields["edd_user_pass"] = "should-not-be-kept"

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, fields))
	require.NoError(t, err)
	require.Equal(t, CheckoutCompleted, res.Status)
	require.NotNil(t, res.Receipt)

	assert.Len(t, res.Receipt.PurchaseKey, 32)
	assert.Equal(t, "/checkout/success?payment_key="+res.Receipt.PurchaseKey, res.RedirectURL)
	assert.Equal(t, "16.50", res.Receipt.Total)

	require.Len(t, h.store.payments, 1)
	p := h.store.payments[0]
	assert.Equal(t, models.PaymentStatusComplete, p.Status)
	assert.Equal(t, "FIVE", p.DiscountCode)
	assert.Equal(t, "buyer@example.com", p.Email)
	assert.Nil(t, p.CustomerID)
	assert.Len(t, h.store.items, 1)
	assert.Len(t, h.store.fees, 1)

	require.Len(t, h.publisher.completed, 1)
	assert.Equal(t, p.ID, h.publisher.completed[0].PaymentID)

	assert.True(t, st.Cart.IsEmpty())
	assert.Empty(t, st.DiscountCode)
	assert.False(t, st.Fees.Has())
	assert.False(t, st.Errors.Any())
	assert.Equal(t, res.Receipt, st.LastPurchase)
}

func TestProcessPurchaseFreeCartUsesManualGateway(t *testing.T) {
	h := newHarness(t, func(shop *config.ShopConfig) {
		shop.EnabledGateways = []string{"card"}
		shop.DefaultGateway = "card"
	})
	h.gateways.Register(failingGateway{id: "card"})
	h.store.addDownload(1, "Freebie", "0.00")
	st := cartWith(t, h, 1)

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, guestFields()))
	require.NoError(t, err)
	require.Equal(t, CheckoutCompleted, res.Status)
	assert.Equal(t, ManualGatewayID, res.Receipt.Gateway)
}

func TestProcessPurchaseRegistersAndSignsIn(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, map[string]string{
		"edd-purchase-var":      checkout.PurchaseVarRegister,
		"edd_user_login":        "grace",
		"edd_email":             "grace@example.com",
		"edd_first":             "Grace",
		"edd_user_pass":         "hunter22",
		"edd_user_pass_confirm": "hunter22",
	}))
	require.NoError(t, err)
	require.Equal(t, CheckoutCompleted, res.Status)

	require.Len(t, h.store.customers, 1)
	assert.NotZero(t, st.CustomerID)
	require.NotNil(t, h.store.payments[0].CustomerID)
	assert.Equal(t, st.CustomerID, *h.store.payments[0].CustomerID)
}

func TestProcessPurchaseCompensatesOnGatewayFailure(t *testing.T) {
	h := newHarness(t, func(shop *config.ShopConfig) {
		shop.EnabledGateways = []string{"card"}
		shop.DefaultGateway = "card"
	})
	h.gateways.Register(failingGateway{id: "card"})
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)
	form := purchaseForm(h, map[string]string{
		"edd-purchase-var":      checkout.PurchaseVarRegister,
		"edd_user_login":        "grace",
		"edd_email":             "grace@example.com",
		"edd_first":             "Grace",
		"edd_user_pass":         "hunter22",
		"edd_user_pass_confirm": "hunter22",
	})

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, form)
	require.NoError(t, err)
	assert.Equal(t, CheckoutFailed, res.Status)
	assert.Equal(t, "/checkout?payment-mode=card", res.RedirectURL)

	// The account created for this purchase is rolled back with the session sign-in.
	assert.Empty(t, h.store.customers)
	assert.Zero(t, st.CustomerID)
	assert.True(t, st.Errors.Has(checkout.ErrCodeGatewayFailed))
	assert.Equal(t, 1, st.Cart.Len())
	require.Len(t, h.publisher.failed, 1)

	// The purchase key was released, so the same submission may be retried.
	res, err = h.checkout.ProcessPurchase(context.Background(), testSession, st, form)
	require.NoError(t, err)
	assert.Equal(t, CheckoutFailed, res.Status)
}

func TestProcessPurchaseRecordFailureCompensates(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	h.store.paymentErr = errors.New("db down")
	c := h.store.addCustomer(t, "ada", "ada@example.com", "secret")
	st := cartWith(t, h, 1)

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, map[string]string{
		"edd-purchase-var": checkout.PurchaseVarLogin,
		"edd_user_login":   "ada",
		"edd_user_pass":    "secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, CheckoutFailed, res.Status)

	// Existing accounts survive; only the sign-in is undone.
	assert.Contains(t, h.store.customers, c.ID)
	assert.Zero(t, st.CustomerID)
}

func TestProcessPurchaseRejectsDuplicateSubmission(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)
	form := purchaseForm(h, guestFields())

	key := purchaseIdempotencyKey(testSession, form.Get(FieldPurchaseNonce), &st.Cart)
	h.redis.Set("idempotency:"+key, testSession)

	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, form)
	require.NoError(t, err)
	assert.Equal(t, CheckoutInvalid, res.Status)
	assert.Equal(t, []string{checkout.ErrCodeDuplicatePurchase}, res.Errors)
	assert.Empty(t, h.store.payments)
}

func TestPurchaseFilterRuns(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)

	var seen *checkout.PurchaseData
	h.checkout.AddPurchaseFilter(func(_ context.Context, data *checkout.PurchaseData) error {
		seen = data
		return nil
	})

	fields := guestFields()
	fields["edd_user_pass"] = "leak"
	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, fields))
	require.NoError(t, err)
	require.Equal(t, CheckoutCompleted, res.Status)

	require.NotNil(t, seen)
	assert.Equal(t, []int64{1}, seen.Downloads)
	assert.Equal(t, "Grace", seen.UserInfo.FirstName)
	assert.NotContains(t, seen.PostData, "edd_user_pass")
	assert.NotContains(t, seen.PostData, FieldPurchaseNonce)
	assert.Equal(t, []string{"buyer@example.com"}, seen.PostData["edd_email"])
}

func TestDiscountWithOneUseBuysOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	h.store.addDiscount(&models.Discount{Code: "ONCE", Type: models.DiscountTypePercent, Amount: decimal.NewFromInt(10), MaxUses: 1})
	ctx := context.Background()

	for _, session := range []string{"sess-a", "sess-b"} {
		st := cartWith(t, h, 1)
		form := url.Values{}
		form.Set(FieldPurchaseNonce, h.nonces.Create(nonce.ActionPurchase, session))
		for k, v := range guestFields() {
			form.Set(k, v)
		}
		form.Set(FieldDiscount, "ONCE")
		_, err := h.checkout.ProcessPurchase(ctx, session, st, form)
		require.NoError(t, err)
	}

	require.Len(t, h.store.payments, 1)
	assert.Equal(t, "ONCE", h.store.payments[0].DiscountCode)
	assert.Equal(t, int64(1), h.store.discounts["ONCE"].Uses)
}

func TestDiscountMaxedBetweenValidationAndRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	d := &models.Discount{Code: "LAST", Type: models.DiscountTypePercent, Amount: decimal.NewFromInt(10), MaxUses: 1}
	h.store.addDiscount(d)
	st := cartWith(t, h, 1)

	// a concurrent buyer redeems the last use after this cart was validated
	h.checkout.AddPurchaseFilter(func(_ context.Context, _ *checkout.PurchaseData) error {
		d.Uses = d.MaxUses
		return nil
	})

	fields := guestFields()
	fields[FieldDiscount] = "LAST"
	res, err := h.checkout.ProcessPurchase(context.Background(), testSession, st, purchaseForm(h, fields))
	require.NoError(t, err)

	assert.Equal(t, CheckoutFailed, res.Status)
	assert.Equal(t, []string{checkout.ErrCodeDiscountMaxed}, res.Errors)
	assert.True(t, st.Errors.Has(checkout.ErrCodeDiscountMaxed))
	assert.Empty(t, h.store.payments)
	assert.Empty(t, h.publisher.completed)
	assert.Equal(t, 1, st.Cart.Len())
}

func TestCheckoutForm(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addDownload(1, "Theme", "20.00")
	st := cartWith(t, h, 1)

	form, err := h.checkout.Form(context.Background(), testSession, st, "bogus")
	require.NoError(t, err)
	assert.Equal(t, ManualGatewayID, form.Gateway)
	assert.Equal(t, []GatewayOption{{ID: ManualGatewayID, Label: "Free / offline purchase"}}, form.Gateways)
	assert.True(t, h.nonces.Verify(form.Nonce, nonce.ActionPurchase, testSession))
	assert.Equal(t, "20.00", form.Contents.Totals.Total.StringFixed(2))
}
