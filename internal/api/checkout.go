package api

import (
	"errors"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// getCheckout returns the checkout form data. Stored errors are handed out
// once and then cleared.
func (h *Handler) getCheckout(c *gin.Context) {
	var form *service.CheckoutForm
	st, err := h.withState(c, func(st *checkout.State) error {
		var err error
		form, err = h.checkout.Form(c.Request.Context(), sessionID(c), st, c.Query("payment-mode"))
		if err != nil {
			return err
		}
		shown := checkout.Errors{}
		shown.Merge(st.Errors)
		form.Errors = shown
		st.Errors.Clear()
		return nil
	})
	if err != nil {
		h.internalError(c, err)
		return
	}

	succeed(c, http.StatusOK, "", gin.H{
		"cart":          newCartView(form.Contents, st, h.cart.Format()),
		"errors":        form.Errors,
		"gateways":      form.Gateways,
		"gateway":       form.Gateway,
		"nonce":         form.Nonce,
		"require_terms": form.RequireTerms,
		"allow_guest":   form.AllowGuest,
		"logged_in":     form.LoggedIn,
		"last_purchase": form.LastPurchase,
	})
}

// purchase handles the checkout form post (edd-action=purchase). Browsers are
// redirected; clients posting edd_ajax get the outcome as JSON.
func (h *Handler) purchase(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		fail(c, http.StatusBadRequest, "invalid_form", "Malformed checkout form")
		return
	}
	form := c.Request.PostForm
	ajax := form.Get("edd_ajax") != ""

	if action := form.Get("edd-action"); action != "purchase" {
		fail(c, http.StatusBadRequest, "invalid_action", "Unknown checkout action")
		return
	}

	sess, st, err := h.loadState(c.Request.Context(), sessionID(c))
	if err != nil {
		h.internalError(c, err)
		return
	}

	result, err := h.checkout.ProcessPurchase(c.Request.Context(), sessionID(c), st, form)
	if err != nil {
		h.internalError(c, err)
		return
	}

	if result.Status == service.CheckoutIgnored {
		if ajax {
			fail(c, http.StatusForbidden, "invalid_nonce", "Security check failed, please reload the page")
			return
		}
		c.Redirect(http.StatusSeeOther, h.checkoutPath)
		return
	}

	if err := h.overwriteState(c, sess, st); err != nil {
		h.internalError(c, err)
		return
	}

	if !ajax {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}

	extra := gin.H{
		"status":   result.Status,
		"redirect": result.RedirectURL,
	}
	switch result.Status {
	case service.CheckoutCompleted:
		extra["receipt"] = result.Receipt
		succeed(c, http.StatusOK, "Purchase complete", extra)
	default:
		extra["errors"] = st.Errors
		reply(c, http.StatusUnprocessableEntity, false, result.Errors[0], st.Errors[result.Errors[0]], extra)
	}
}

// getReceipt returns the visitor's last purchase by its purchase key
func (h *Handler) getReceipt(c *gin.Context) {
	_, st, err := h.loadState(c.Request.Context(), sessionID(c))
	if err != nil {
		h.internalError(c, err)
		return
	}

	receipt, err := h.receipts.Get(c.Request.Context(), st, c.Param("key"))
	switch {
	case errors.Is(err, service.ErrReceiptNotFound):
		fail(c, http.StatusNotFound, "receipt_not_found", "Receipt not found")
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	f := h.cart.Format()
	items := make([]gin.H, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		items = append(items, gin.H{
			"download_id": item.DownloadID,
			"price_id":    item.PriceID,
			"name":        item.Name,
			"amount":      checkout.Money(item.Amount, f),
		})
	}
	fees := make([]feeView, 0, len(receipt.Fees))
	for _, fee := range receipt.Fees {
		fees = append(fees, feeView{ID: fee.FeeKey, Label: fee.Label, Amount: checkout.Money(fee.Amount, f)})
	}

	p := receipt.Payment
	succeed(c, http.StatusOK, "", gin.H{
		"payment_id":    p.ID,
		"purchase_key":  p.PurchaseKey,
		"status":        p.Status,
		"gateway":       p.Gateway,
		"email":         p.Email,
		"discount_code": p.DiscountCode,
		"subtotal":      checkout.Money(p.Subtotal, f),
		"discount":      checkout.Money(p.Discount, f),
		"fee_total":     checkout.Money(p.FeeTotal, f),
		"total":         checkout.Money(p.Total, f),
		"items":         items,
		"fees":          fees,
		"date":          p.CreatedAt,
	})
}
