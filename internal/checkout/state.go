package checkout

import (
	"fmt"
	"strconv"

	"storefront/internal/session"
)

// Session keys
const (
	KeyCart       = "edd_cart"
	KeyDiscount   = "edd_cart_discounts"
	KeyFees       = "edd_cart_fees"
	KeyErrors     = "edd_errors"
	KeyCustomerID = "edd_customer_id"
	KeyPurchase   = "edd_purchase"
)

// State is everything the checkout path keeps in a visitor's session,
// decoded once per request
type State struct {
	Cart         Cart
	DiscountCode string
	Fees         Fees
	Errors       Errors
	CustomerID   int64
	LastPurchase *Receipt
}

// Receipt is the summary of the visitor's last completed purchase
type Receipt struct {
	PaymentID   int64  `json:"payment_id"`
	PurchaseKey string `json:"purchase_key"`
	Gateway     string `json:"gateway"`
	Total       string `json:"total"`
}

// LoadState decodes the checkout state from a session
func LoadState(s *session.Session) (*State, error) {
	st := &State{Errors: Errors{}}

	if _, err := s.GetInto(KeyCart, &st.Cart.Items); err != nil {
		return nil, err
	}
	if code, ok := s.GetString(KeyDiscount); ok {
		st.DiscountCode = code
	}
	if _, err := s.GetInto(KeyFees, &st.Fees); err != nil {
		return nil, err
	}
	if _, err := s.GetInto(KeyErrors, &st.Errors); err != nil {
		return nil, err
	}
	if st.Errors == nil {
		st.Errors = Errors{}
	}
	if raw, ok := s.GetString(KeyCustomerID); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode session customer id: %w", err)
		}
		st.CustomerID = id
	}
	var receipt Receipt
	found, err := s.GetInto(KeyPurchase, &receipt)
	if err != nil {
		return nil, err
	}
	if found {
		st.LastPurchase = &receipt
	}

	return st, nil
}

// Store writes the state back into the session. Empty parts are unset.
func (st *State) Store(s *session.Session) error {
	if st.Cart.IsEmpty() {
		s.Delete(KeyCart)
	} else if _, err := s.Set(KeyCart, st.Cart.Items); err != nil {
		return err
	}

	if st.DiscountCode == "" {
		s.Delete(KeyDiscount)
	} else if _, err := s.Set(KeyDiscount, st.DiscountCode); err != nil {
		return err
	}

	if !st.Fees.Has() {
		s.Delete(KeyFees)
	} else if _, err := s.Set(KeyFees, st.Fees); err != nil {
		return err
	}

	if !st.Errors.Any() {
		s.Delete(KeyErrors)
	} else if _, err := s.Set(KeyErrors, st.Errors); err != nil {
		return err
	}

	if st.CustomerID == 0 {
		s.Delete(KeyCustomerID)
	} else if _, err := s.Set(KeyCustomerID, strconv.FormatInt(st.CustomerID, 10)); err != nil {
		return err
	}

	if st.LastPurchase == nil {
		s.Delete(KeyPurchase)
	} else if _, err := s.Set(KeyPurchase, st.LastPurchase); err != nil {
		return err
	}

	return nil
}

// AddToCart adds a line and clears any stored checkout errors
func (st *State) AddToCart(downloadID int64, opts Options) (string, bool) {
	key, added := st.Cart.Add(downloadID, opts)
	st.Errors.Clear()
	return key, added
}

// EmptyCart drops the cart, the active discount and the fees
func (st *State) EmptyCart() {
	st.Cart.Empty()
	st.DiscountCode = ""
	st.Fees.Clear()
}
