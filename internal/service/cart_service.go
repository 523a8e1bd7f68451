package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/config"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartService handles cart business logic on a request's checkout state
type CartService struct {
	catalog   CatalogRepository
	discounts DiscountRepository
	format    checkout.Format
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(catalog CatalogRepository, discounts DiscountRepository, format checkout.Format) *CartService {
	return &CartService{
		catalog:   catalog,
		discounts: discounts,
		format:    format,
		logger:    util.Named("cart"),
	}
}

// FormatFromShop converts the shop settings into an amount format
func FormatFromShop(cfg config.ShopConfig) checkout.Format {
	return checkout.Format{
		Currency:     cfg.Currency,
		Position:     cfg.CurrencyPosition,
		ThousandsSep: cfg.ThousandsSep,
		DecimalSep:   cfg.DecimalSep,
	}
}

// Format returns the amount format used for display
func (s *CartService) Format() checkout.Format {
	return s.format
}

// AddResult reports what an add-to-cart call changed
type AddResult struct {
	Keys  []string `json:"keys"`
	Added int      `json:"added"`
}

// InCart is true when every requested line was already in the cart
func (r *AddResult) InCart() bool {
	return r.Added == 0
}

// AddToCart adds a download to the cart, one line per requested price id.
// Downloads with variable pricing default to the first tier when no price id
// is given; price ids are ignored for flat-priced downloads.
func (s *CartService) AddToCart(ctx context.Context, st *checkout.State, downloadID int64, priceIDs []int) (*AddResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	d, err := s.catalog.GetDownloadByID(ctx, downloadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrDownloadNotFound, downloadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load download: %w", err)
	}
	if d.Status != models.DownloadStatusPublished {
		return nil, fmt.Errorf("%w: %d", ErrDownloadUnavailable, downloadID)
	}

	options, err := lineOptions(d, priceIDs)
	if err != nil {
		return nil, err
	}

	result := &AddResult{Keys: make([]string, 0, len(options))}
	for _, opts := range options {
		key, added := st.AddToCart(downloadID, opts)
		result.Keys = append(result.Keys, key)
		if added {
			result.Added++
			util.CartItemsAddedTotal.Inc()
		}
	}

	s.logger.Debug("add to cart",
		zap.Int64("download_id", downloadID),
		zap.Int("added", result.Added),
		zap.Int("cart_size", st.Cart.Len()))
	return result, nil
}

func lineOptions(d *models.Download, priceIDs []int) ([]checkout.Options, error) {
	if !d.HasVariablePrices() {
		return []checkout.Options{{}}, nil
	}
	if len(priceIDs) == 0 {
		priceIDs = []int{0}
	}

	tiers := len(d.VariablePrices())
	options := make([]checkout.Options, 0, len(priceIDs))
	for _, id := range priceIDs {
		if id < 0 || id >= tiers {
			return nil, fmt.Errorf("%w: %d for download %d", ErrInvalidPriceID, id, d.ID)
		}
		priceID := id
		options = append(options, checkout.Options{PriceID: &priceID})
	}
	return options, nil
}

// Remove drops the line with the given key. Emptying the cart this way also
// drops the active discount.
func (s *CartService) Remove(st *checkout.State, key string) bool {
	if !st.Cart.Remove(key) {
		return false
	}
	s.afterRemove(st)
	return true
}

// RemoveAt drops the line at a position
func (s *CartService) RemoveAt(st *checkout.State, position int) bool {
	if !st.Cart.RemoveAt(position) {
		return false
	}
	s.afterRemove(st)
	return true
}

func (s *CartService) afterRemove(st *checkout.State) {
	util.CartItemsRemovedTotal.Inc()
	if st.Cart.IsEmpty() {
		st.DiscountCode = ""
	}
}

// Empty clears the cart with its discount and fees
func (s *CartService) Empty(st *checkout.State) {
	st.EmptyCart()
}

// AddFee parses a locale formatted amount and stores it as a fee
func (s *CartService) AddFee(st *checkout.State, amount, label, id string) (string, error) {
	if strings.TrimSpace(amount) == "" {
		return "", fmt.Errorf("%w: empty fee amount", ErrInvalidAmount)
	}
	return st.Fees.Add(checkout.SanitizeAmount(amount, s.format), label, id)
}

// RemoveFee drops a fee by id
func (s *CartService) RemoveFee(st *checkout.State, id string) bool {
	return st.Fees.Remove(id)
}

// Catalog lists the downloads that can be added to the cart
func (s *CartService) Catalog(ctx context.Context) ([]models.Download, error) {
	downloads, err := s.catalog.ListDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	return downloads, nil
}

// CartContents is a fully priced view of the cart
type CartContents struct {
	Lines    []checkout.Line  `json:"lines"`
	Totals   checkout.Totals  `json:"totals"`
	Discount *models.Discount `json:"-"`
	Fees     []checkout.Fee   `json:"fees"`
}

// Contents prices the cart. Lines whose download no longer exists are
// dropped from the cart, and a stored discount code that no longer exists is
// cleared.
func (s *CartService) Contents(ctx context.Context, st *checkout.State) (*CartContents, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Contents")
	defer span.End()

	downloads, err := s.catalog.GetDownloadsByIDs(ctx, st.Cart.DownloadIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart downloads: %w", err)
	}

	var stale []string
	for _, item := range st.Cart.Items {
		if _, ok := downloads[item.DownloadID]; !ok {
			stale = append(stale, item.Key)
		}
	}
	for _, key := range stale {
		s.logger.Warn("dropping cart line for missing download", zap.String("key", key))
		st.Cart.Remove(key)
	}

	lines, err := checkout.PriceCart(&st.Cart, downloads)
	if err != nil {
		return nil, err
	}

	var discount *models.Discount
	if st.DiscountCode != "" {
		discount, err = s.discounts.GetDiscountByCode(ctx, st.DiscountCode)
		switch {
		case errors.Is(err, store.ErrNotFound):
			st.DiscountCode = ""
			discount = nil
		case err != nil:
			return nil, fmt.Errorf("failed to load discount: %w", err)
		}
	}

	return &CartContents{
		Lines:    lines,
		Totals:   checkout.ComputeTotals(lines, discount, &st.Fees),
		Discount: discount,
		Fees:     st.Fees.All(),
	}, nil
}
