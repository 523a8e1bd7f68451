package api

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/checkout"
	"storefront/internal/nonce"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// listDownloads returns the published catalog with formatted prices
func (h *Handler) listDownloads(c *gin.Context) {
	downloads, err := h.cart.Catalog(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	f := h.cart.Format()
	views := make([]gin.H, 0, len(downloads))
	for i := range downloads {
		d := &downloads[i]
		view := gin.H{
			"id":    d.ID,
			"title": d.Title,
			"price": checkout.Money(d.Price, f),
		}
		if d.HasVariablePrices() {
			prices := make([]gin.H, 0)
			for id, vp := range d.VariablePrices() {
				prices = append(prices, gin.H{"price_id": id, "name": vp.Name, "amount": checkout.Money(vp.Amount, f)})
			}
			view["variable_prices"] = prices
		}
		views = append(views, view)
	}
	succeed(c, http.StatusOK, "", gin.H{"downloads": views})
}

// getCart returns the priced cart and a fresh ajax nonce
func (h *Handler) getCart(c *gin.Context) {
	var contents *service.CartContents
	st, err := h.withState(c, func(st *checkout.State) error {
		var err error
		contents, err = h.cart.Contents(c.Request.Context(), st)
		return err
	})
	if err != nil {
		h.internalError(c, err)
		return
	}

	succeed(c, http.StatusOK, "", gin.H{
		"cart":  newCartView(contents, st, h.cart.Format()),
		"nonce": h.nonces.Create(nonce.ActionAjax, sessionID(c)),
	})
}

// addToCart handles download_id with optional price_ids[]
func (h *Handler) addToCart(c *gin.Context) {
	downloadID, err := strconv.ParseInt(c.PostForm("download_id"), 10, 64)
	if err != nil || downloadID <= 0 {
		fail(c, http.StatusBadRequest, "invalid_download", "Invalid download ID")
		return
	}

	priceIDs, err := parsePriceIDs(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_price_id", "Invalid price ID")
		return
	}

	var result *service.AddResult
	var contents *service.CartContents
	st, err := h.withState(c, func(st *checkout.State) error {
		var err error
		if result, err = h.cart.AddToCart(c.Request.Context(), st, downloadID, priceIDs); err != nil {
			return err
		}
		contents, err = h.cart.Contents(c.Request.Context(), st)
		return err
	})
	switch {
	case errors.Is(err, service.ErrDownloadNotFound):
		fail(c, http.StatusNotFound, "invalid_download", "Download not found")
		return
	case errors.Is(err, service.ErrDownloadUnavailable):
		fail(c, http.StatusBadRequest, "download_unavailable", "This download is not available for purchase")
		return
	case errors.Is(err, service.ErrInvalidPriceID):
		fail(c, http.StatusBadRequest, "invalid_price_id", "Invalid price ID")
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	extra := gin.H{
		"keys": result.Keys,
		"cart": newCartView(contents, st, h.cart.Format()),
	}
	if result.InCart() {
		reply(c, http.StatusOK, false, "incart", "This item is already in your cart", extra)
		return
	}
	succeed(c, http.StatusOK, "added", extra)
}

func parsePriceIDs(c *gin.Context) ([]int, error) {
	raw := c.PostFormArray("price_ids[]")
	if len(raw) == 0 {
		raw = c.PostFormArray("price_ids")
	}
	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.Atoi(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// removeFromCart removes a line by its stable key
func (h *Handler) removeFromCart(c *gin.Context) {
	key := c.Param("key")
	h.removeLine(c, func(st *checkout.State) bool {
		return h.cart.Remove(st, key)
	})
}

// removeFromCartAt removes a line by the legacy cart_item position
func (h *Handler) removeFromCartAt(c *gin.Context) {
	position, err := strconv.Atoi(c.PostForm("cart_item"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_cart_item", "Invalid cart item")
		return
	}
	h.removeLine(c, func(st *checkout.State) bool {
		return h.cart.RemoveAt(st, position)
	})
}

func (h *Handler) removeLine(c *gin.Context, remove func(st *checkout.State) bool) {
	var removed bool
	var contents *service.CartContents
	st, err := h.withState(c, func(st *checkout.State) error {
		removed = remove(st)
		var err error
		contents, err = h.cart.Contents(c.Request.Context(), st)
		return err
	})
	if err != nil {
		h.internalError(c, err)
		return
	}
	if !removed {
		fail(c, http.StatusNotFound, "not_in_cart", "That item is not in your cart")
		return
	}
	succeed(c, http.StatusOK, "removed", gin.H{"cart": newCartView(contents, st, h.cart.Format())})
}

// emptyCart drops every line with the discount and fees
func (h *Handler) emptyCart(c *gin.Context) {
	_, err := h.withState(c, func(st *checkout.State) error {
		h.cart.Empty(st)
		return nil
	})
	if err != nil {
		h.internalError(c, err)
		return
	}
	succeed(c, http.StatusOK, "emptied", nil)
}

// applyDiscount handles code with an optional user email
func (h *Handler) applyDiscount(c *gin.Context) {
	code := c.PostForm("code")
	email := c.PostForm("email")
	if email == "" {
		email = c.PostForm("user")
	}

	var result *service.DiscountResult
	st, err := h.withState(c, func(st *checkout.State) error {
		var err error
		result, err = h.discounts.Apply(c.Request.Context(), st, code, email)
		return err
	})
	if err != nil {
		h.internalError(c, err)
		return
	}

	if !result.Applied() {
		fail(c, http.StatusUnprocessableEntity, result.ErrorCode, result.Message)
		return
	}

	f := h.cart.Format()
	totals := result.Contents.Totals
	succeed(c, http.StatusOK, result.Message, gin.H{
		"code":   result.Discount.Code,
		"amount": checkout.Money(totals.Discount, f),
		"total":  checkout.Money(totals.Total, f),
		"cart":   newCartView(result.Contents, st, f),
	})
}

// removeDiscount clears the active discount
func (h *Handler) removeDiscount(c *gin.Context) {
	var contents *service.CartContents
	st, err := h.withState(c, func(st *checkout.State) error {
		h.discounts.Remove(st)
		var err error
		contents, err = h.cart.Contents(c.Request.Context(), st)
		return err
	})
	if err != nil {
		h.internalError(c, err)
		return
	}
	succeed(c, http.StatusOK, "Discount removed.", gin.H{"cart": newCartView(contents, st, h.cart.Format())})
}

// addFee handles amount, label and an optional id
func (h *Handler) addFee(c *gin.Context) {
	var key string
	_, err := h.withState(c, func(st *checkout.State) error {
		var err error
		key, err = h.cart.AddFee(st, c.PostForm("amount"), c.PostForm("label"), c.PostForm("id"))
		return err
	})
	switch {
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, checkout.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, "invalid_fee", err.Error())
		return
	case err != nil:
		h.internalError(c, err)
		return
	}
	succeed(c, http.StatusCreated, "Fee added.", gin.H{"id": key})
}

// removeFee drops a fee by id
func (h *Handler) removeFee(c *gin.Context) {
	var removed bool
	_, err := h.withState(c, func(st *checkout.State) error {
		removed = h.cart.RemoveFee(st, c.Param("id"))
		return nil
	})
	if err != nil {
		h.internalError(c, err)
		return
	}
	if !removed {
		fail(c, http.StatusNotFound, "fee_not_found", "No fee with that id")
		return
	}
	succeed(c, http.StatusOK, "Fee removed.", nil)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	fail(c, http.StatusInternalServerError, "internal_error", "Something went wrong, please try again")
}
