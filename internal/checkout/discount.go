package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned for a structurally invalid call
var ErrInvalidArgument = errors.New("invalid argument")

// Discount error codes stored in the checkout error map
const (
	ErrCodeInvalidDiscount     = "invalid_discount"
	ErrCodeDiscountInactive    = "discount_inactive"
	ErrCodeDiscountNotStarted  = "discount_not_started"
	ErrCodeDiscountExpired     = "discount_expired"
	ErrCodeDiscountMaxed       = "discount_maxed"
	ErrCodeDiscountMinPrice    = "discount_min_price"
	ErrCodeDiscountUsed        = "discount_used"
	ErrCodeDiscountProductReqs = "discount_product_reqs"
)

// DiscountValidator evaluates a discount's product rules against a cart. It
// holds no state beyond its inputs.
type DiscountValidator struct {
	discount  *models.Discount
	downloads []int64
	user      string
	cartPrice decimal.Decimal
}

// NewDiscountValidator builds a validator for one discount and cart
func NewDiscountValidator(d *models.Discount, downloads []int64, user string, cartPrice decimal.Decimal) *DiscountValidator {
	return &DiscountValidator{
		discount:  d,
		downloads: downloads,
		user:      user,
		cartPrice: cartPrice,
	}
}

// CheckSingleUse applies the one-redemption-per-customer rule. used looks up
// whether user already redeemed code and is only called for single-use
// discounts when the customer is known.
func (v *DiscountValidator) CheckSingleUse(used func(code, user string) (bool, error)) (string, error) {
	if !v.discount.SingleUse || v.user == "" {
		return "", nil
	}
	redeemed, err := used(v.discount.Code, v.user)
	if err != nil {
		return "", err
	}
	if redeemed {
		return ErrCodeDiscountUsed, nil
	}
	return "", nil
}

// IsValid checks product requirements and exclusions. Requirements use the
// discount's condition: "all" needs every required product in the cart, any
// other value needs at least one. A single excluded product in the cart makes
// the discount invalid regardless of requirements.
func (v *DiscountValidator) IsValid() (bool, error) {
	if len(v.downloads) == 0 {
		return false, fmt.Errorf("%w: no downloads to validate discount against", ErrInvalidArgument)
	}

	reqs := v.discount.ProductReqs.Normalized()
	excluded := v.discount.ExcludedProducts.Normalized()
	if len(reqs) == 0 && len(excluded) == 0 {
		return true, nil
	}

	inCart := make(map[int64]struct{}, len(v.downloads))
	for _, id := range v.downloads {
		inCart[id] = struct{}{}
	}

	valid := true
	if len(reqs) > 0 {
		if v.discount.ProductCondition == models.ProductConditionAll {
			for _, id := range reqs {
				if _, ok := inCart[id]; !ok {
					valid = false
					break
				}
			}
		} else {
			valid = false
			for _, id := range reqs {
				if _, ok := inCart[id]; ok {
					valid = true
					break
				}
			}
		}
	}

	for _, id := range excluded {
		if _, ok := inCart[id]; ok {
			valid = false
			break
		}
	}

	return valid, nil
}

// Check runs every rule that needs no storage lookup and returns the first
// failing error code, or "" when the discount applies. The per-customer
// single-use rule needs storage and is run by CheckSingleUse.
func (v *DiscountValidator) Check(now time.Time) (string, error) {
	d := v.discount

	if d.Status != models.DiscountStatusActive {
		return ErrCodeDiscountInactive, nil
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return ErrCodeDiscountNotStarted, nil
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return ErrCodeDiscountExpired, nil
	}
	if d.MaxUses > 0 && d.Uses >= d.MaxUses {
		return ErrCodeDiscountMaxed, nil
	}
	if d.MinPrice.IsPositive() && v.cartPrice.LessThan(d.MinPrice) {
		return ErrCodeDiscountMinPrice, nil
	}

	ok, err := v.IsValid()
	if err != nil {
		return "", err
	}
	if !ok {
		return ErrCodeDiscountProductReqs, nil
	}
	return "", nil
}

// DiscountMessage returns the visitor-facing text for a discount error code
func DiscountMessage(code string, d *models.Discount, f Format) string {
	switch code {
	case ErrCodeDiscountInactive, ErrCodeInvalidDiscount:
		return "This discount is invalid."
	case ErrCodeDiscountNotStarted:
		return "This discount is not active yet."
	case ErrCodeDiscountExpired:
		return "This discount is expired."
	case ErrCodeDiscountMaxed:
		return "This discount has reached its maximum usage."
	case ErrCodeDiscountMinPrice:
		if d != nil {
			return fmt.Sprintf("Minimum order of %s not met.", Money(d.MinPrice, f))
		}
		return "Minimum order amount not met."
	case ErrCodeDiscountUsed:
		return "This discount has already been redeemed."
	case ErrCodeDiscountProductReqs:
		return "The product requirements for this discount are not met."
	default:
		return "This discount is invalid."
	}
}

// NormalizeCode trims and upper-cases a discount code as entered
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountedAmount applies d to base. Flat discounts subtract their amount,
// percent discounts scale base down. The result never drops below zero.
func DiscountedAmount(d *models.Discount, base decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	switch d.Type {
	case models.DiscountTypePercent:
		off := base.Mul(d.Amount).Div(decimal.NewFromInt(100))
		discounted = base.Sub(off)
	default:
		discounted = base.Sub(d.Amount)
	}

	if discounted.IsNegative() {
		discounted = decimal.Zero
	}
	return discounted.Round(2)
}

// DiscountAmount is how much d takes off base
func DiscountAmount(d *models.Discount, base decimal.Decimal) decimal.Decimal {
	return base.Sub(DiscountedAmount(d, base))
}
