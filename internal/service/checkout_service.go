package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"storefront/config"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/nonce"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Checkout form fields
const (
	FieldPurchaseNonce = "edd-purchase-nonce"
	FieldGateway       = "edd-gateway"
	FieldDiscount      = "edd-discount"
	FieldAgreeToTerms  = "edd_agree_to_terms"
)

// Form fields never copied into the purchase record
var privateFields = []string{FieldPurchaseNonce, "edd_user_pass", "edd_user_pass_confirm"}

// PurchaseFilter may adjust purchase data before it reaches the gateway.
// Returning an error aborts the purchase.
type PurchaseFilter func(ctx context.Context, data *checkout.PurchaseData) error

// CheckoutStatus is the outcome of a purchase submission
type CheckoutStatus string

const (
	// CheckoutIgnored means the nonce did not verify and nothing happened
	CheckoutIgnored CheckoutStatus = "ignored"
	// CheckoutInvalid means validation failed; errors are in the session
	CheckoutInvalid CheckoutStatus = "invalid"
	// CheckoutFailed means validation passed but the purchase could not complete
	CheckoutFailed CheckoutStatus = "failed"
	// CheckoutCompleted means the gateway accepted the purchase
	CheckoutCompleted CheckoutStatus = "completed"
)

// CheckoutResult tells the caller where to send the visitor
type CheckoutResult struct {
	Status      CheckoutStatus
	RedirectURL string
	Errors      []string
	Receipt     *checkout.Receipt
}

// CheckoutService validates purchase submissions and hands them to gateways
type CheckoutService struct {
	cart      *CartService
	discounts *DiscountService
	customers *CustomerService
	gateways  *GatewayRegistry
	nonces    *nonce.Manager
	guard     IdempotencyGuard
	publisher PaymentEventPublisher
	shop      config.ShopConfig
	filters   []PurchaseFilter
	now       func() time.Time
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher may be nil.
func NewCheckoutService(
	cart *CartService,
	discounts *DiscountService,
	customers *CustomerService,
	gateways *GatewayRegistry,
	nonces *nonce.Manager,
	guard IdempotencyGuard,
	publisher PaymentEventPublisher,
	shop config.ShopConfig,
) *CheckoutService {
	return &CheckoutService{
		cart:      cart,
		discounts: discounts,
		customers: customers,
		gateways:  gateways,
		nonces:    nonces,
		guard:     guard,
		publisher: publisher,
		shop:      shop,
		now:       time.Now,
		logger:    util.Named("checkout"),
	}
}

// AddPurchaseFilter registers a filter run on every purchase, in
// registration order
func (s *CheckoutService) AddPurchaseFilter(f PurchaseFilter) {
	s.filters = append(s.filters, f)
}

// CheckoutForm is what the checkout page needs to render
type CheckoutForm struct {
	Contents     *CartContents     `json:"cart"`
	Errors       checkout.Errors   `json:"errors"`
	Gateways     []GatewayOption   `json:"gateways"`
	Gateway      string            `json:"gateway"`
	Nonce        string            `json:"nonce"`
	RequireTerms bool              `json:"require_terms"`
	AllowGuest   bool              `json:"allow_guest"`
	LoggedIn     bool              `json:"logged_in"`
	LastPurchase *checkout.Receipt `json:"last_purchase,omitempty"`
}

// Form assembles the checkout page data. paymentMode restores the gateway
// selected before a failed submission.
func (s *CheckoutService) Form(ctx context.Context, sessionID string, st *checkout.State, paymentMode string) (*CheckoutForm, error) {
	contents, err := s.cart.Contents(ctx, st)
	if err != nil {
		return nil, err
	}

	gateway := s.shop.DefaultGateway
	if paymentMode != "" && s.gateways.Enabled(paymentMode) {
		gateway = paymentMode
	}

	return &CheckoutForm{
		Contents:     contents,
		Errors:       st.Errors,
		Gateways:     s.gateways.Options(),
		Gateway:      gateway,
		Nonce:        s.nonces.Create(nonce.ActionPurchase, sessionID),
		RequireTerms: s.shop.RequireTerms,
		AllowGuest:   s.shop.AllowGuest,
		LoggedIn:     st.CustomerID != 0,
		LastPurchase: st.LastPurchase,
	}, nil
}

// ProcessPurchase handles a checkout form submission. A submission with a
// bad nonce is ignored. Otherwise every validation runs and all failures are
// stored together; a clean submission runs the purchase saga.
func (s *CheckoutService) ProcessPurchase(ctx context.Context, sessionID string, st *checkout.State, form url.Values) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ProcessPurchase")
	defer span.End()

	token := form.Get(FieldPurchaseNonce)
	if !s.nonces.Verify(token, nonce.ActionPurchase, sessionID) {
		s.logger.Debug("purchase nonce rejected", zap.String("session_id", sessionID))
		return &CheckoutResult{Status: CheckoutIgnored}, nil
	}
	util.CheckoutAttemptsTotal.Inc()

	contents, err := s.cart.Contents(ctx, st)
	if err != nil {
		return nil, err
	}

	errs := checkout.Errors{}
	if st.Cart.IsEmpty() {
		errs.Set(checkout.ErrCodeEmptyCart, "Your cart is empty")
	}

	identity := checkout.ParseIdentity(form)
	identity.Validate(errs, checkout.IdentityRules{
		AllowGuest: s.shop.AllowGuest,
		LoggedIn:   st.CustomerID != 0,
	})

	signedIn, err := s.checkAccount(ctx, identity, errs)
	if err != nil {
		return nil, err
	}

	email := identity.Email()
	if signedIn != nil {
		email = signedIn.Email
	}

	discount, err := s.checkDiscount(ctx, st, contents, form, email, errs)
	if err != nil {
		return nil, err
	}
	totals := checkout.ComputeTotals(contents.Lines, discount, &st.Fees)

	if s.shop.RequireTerms && form.Get(FieldAgreeToTerms) == "" {
		errs.Set(checkout.ErrCodeAgreeToTerms, "You must agree to the terms of use")
	}

	gateway := strings.TrimSpace(form.Get(FieldGateway))
	if gateway == "" {
		gateway = s.shop.DefaultGateway
	}
	if totals.Total.IsPositive() && !s.gateways.Enabled(gateway) {
		errs.Set(checkout.ErrCodeInvalidGateway, "The selected payment gateway is not enabled")
	}

	if errs.Any() {
		return s.reject(st, errs, gateway), nil
	}

	key := purchaseIdempotencyKey(sessionID, token, &st.Cart)
	claimed, err := s.guard.ClaimIdempotencyKey(ctx, key, sessionID, s.shop.PurchaseKeyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim purchase key: %w", err)
	}
	if !claimed {
		errs.Set(checkout.ErrCodeDuplicatePurchase, "This purchase is already being processed")
		return s.reject(st, errs, gateway), nil
	}

	p := &purchase{
		state:    st,
		contents: contents,
		totals:   totals,
		discount: discount,
		identity: identity,
		customer: signedIn,
		email:    email,
		gateway:  gateway,
		form:     form,
	}
	return s.runPurchase(ctx, p, key)
}

// checkAccount runs the storage-backed identity checks
func (s *CheckoutService) checkAccount(ctx context.Context, identity checkout.Identity, errs checkout.Errors) (*models.Customer, error) {
	switch id := identity.(type) {
	case checkout.NewAccount:
		return nil, s.customers.CheckAvailability(ctx, id, errs)
	case checkout.ExistingAccount:
		if id.Login == "" || id.Password == "" {
			return nil, nil
		}
		c, code, err := s.customers.Authenticate(ctx, id.Login, id.Password)
		if err != nil {
			return nil, err
		}
		switch code {
		case checkout.ErrCodeUsernameIncorrect:
			errs.Set(code, "The username you entered does not exist")
		case checkout.ErrCodePasswordIncorrect:
			errs.Set(code, "The password you entered is incorrect")
		}
		return c, nil
	}
	return nil, nil
}

// checkDiscount validates the posted code, or the session code when none was
// posted. Any failure is reported as invalid_discount.
func (s *CheckoutService) checkDiscount(ctx context.Context, st *checkout.State, contents *CartContents, form url.Values, email string, errs checkout.Errors) (*models.Discount, error) {
	code := strings.TrimSpace(form.Get(FieldDiscount))
	if code == "" {
		code = st.DiscountCode
	}
	if code == "" || st.Cart.IsEmpty() {
		return nil, nil
	}

	d, errCode, err := s.discounts.Validate(ctx, code, st.Cart.DownloadIDs(), contents.Totals.Subtotal, email)
	if err != nil {
		return nil, err
	}
	if errCode != "" {
		errs.Set(checkout.ErrCodeInvalidDiscount, s.discounts.message(errCode, d))
		return nil, nil
	}
	return d, nil
}

func (s *CheckoutService) reject(st *checkout.State, errs checkout.Errors, gateway string) *CheckoutResult {
	st.Errors.Clear()
	st.Errors.Merge(errs)

	codes := errs.Codes()
	for _, code := range codes {
		util.CheckoutValidationErrorsTotal.WithLabelValues(code).Inc()
	}
	s.logger.Info("purchase rejected", zap.Strings("errors", codes))

	return &CheckoutResult{
		Status:      CheckoutInvalid,
		RedirectURL: s.checkoutURL(gateway),
		Errors:      codes,
	}
}

func (s *CheckoutService) checkoutURL(gateway string) string {
	return s.shop.CheckoutPath + "?" + url.Values{"payment-mode": {gateway}}.Encode()
}

// purchase carries a validated submission through the saga
type purchase struct {
	state    *checkout.State
	contents *CartContents
	totals   checkout.Totals
	discount *models.Discount
	identity checkout.Identity
	customer *models.Customer
	email    string
	gateway  string
	form     url.Values

	data   *checkout.PurchaseData
	result *GatewayResult
}

func (s *CheckoutService) runPurchase(ctx context.Context, p *purchase, idempotencyKey string) (*CheckoutResult, error) {
	st := p.state
	saga := newPurchaseSaga(s.logger)

	err := s.steps(ctx, saga, p)
	if err != nil {
		saga.Compensate(ctx)
		if relErr := s.guard.ReleaseIdempotencyKey(context.WithoutCancel(ctx), idempotencyKey); relErr != nil {
			s.logger.Warn("failed to release purchase key", zap.Error(relErr))
		}

		s.logger.Error("purchase failed",
			zap.Strings("completed_steps", saga.Completed()),
			zap.Error(err))
		util.PurchasesFailedTotal.WithLabelValues(lastStep(err)).Inc()
		s.publishFailed(ctx, p, err)

		code, msg := checkout.ErrCodeGatewayFailed, "Your purchase could not be completed. Please try again."
		if errors.Is(err, store.ErrDiscountMaxed) {
			// another purchase took the last use after validation
			code, msg = checkout.ErrCodeDiscountMaxed, s.discounts.message(checkout.ErrCodeDiscountMaxed, p.discount)
		}
		st.Errors.Clear()
		st.Errors.Set(code, msg)
		return &CheckoutResult{
			Status:      CheckoutFailed,
			RedirectURL: s.checkoutURL(p.gateway),
			Errors:      []string{code},
		}, nil
	}

	receipt := &checkout.Receipt{
		PaymentID:   p.result.PaymentID,
		PurchaseKey: p.data.PurchaseKey,
		Gateway:     p.data.Gateway,
		Total:       p.data.Price.StringFixed(2),
	}
	st.EmptyCart()
	st.Errors.Clear()
	st.LastPurchase = receipt

	util.PurchasesCompletedTotal.WithLabelValues(p.data.Gateway).Inc()
	s.logger.Info("purchase completed",
		zap.Int64("payment_id", receipt.PaymentID),
		zap.String("gateway", receipt.Gateway),
		zap.String("identity", p.identity.Kind()))

	redirect := p.result.RedirectURL
	if redirect == "" {
		redirect = s.shop.SuccessPath + "?" + url.Values{"payment_key": {receipt.PurchaseKey}}.Encode()
	}
	return &CheckoutResult{
		Status:      CheckoutCompleted,
		RedirectURL: redirect,
		Receipt:     receipt,
	}, nil
}

func (s *CheckoutService) steps(ctx context.Context, saga *purchaseSaga, p *purchase) error {
	st := p.state

	if acct, ok := p.identity.(checkout.NewAccount); ok {
		err := saga.Step(ctx, "create_customer",
			func(ctx context.Context) error {
				c, err := s.customers.Register(ctx, acct)
				if err != nil {
					return err
				}
				p.customer = c
				p.email = c.Email
				return nil
			},
			func(ctx context.Context) error {
				return s.customers.Delete(ctx, p.customer.ID)
			})
		if err != nil {
			return err
		}
	}

	if p.customer != nil {
		previous := st.CustomerID
		err := saga.Step(ctx, "sign_in",
			func(context.Context) error {
				st.CustomerID = p.customer.ID
				return nil
			},
			func(context.Context) error {
				st.CustomerID = previous
				return nil
			})
		if err != nil {
			return err
		}
	}

	err := saga.Step(ctx, "build_purchase", func(ctx context.Context) error {
		data, err := s.buildPurchaseData(ctx, p)
		if err != nil {
			return err
		}
		p.data = data
		return nil
	}, nil)
	if err != nil {
		return err
	}

	return saga.Step(ctx, "dispatch", func(ctx context.Context) error {
		gw, ok := s.gateways.Get(p.data.Gateway)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGateway, p.data.Gateway)
		}

		start := time.Now()
		result, err := gw.Process(ctx, p.data)
		util.GatewayProcessingLatency.WithLabelValues(gw.ID()).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		p.result = result
		return nil
	}, nil)
}

// buildPurchaseData assembles the gateway payload and runs the purchase
// filters. A total of zero or less always goes to the manual gateway.
func (s *CheckoutService) buildPurchaseData(ctx context.Context, p *purchase) (*checkout.PurchaseData, error) {
	st := p.state
	now := s.now()

	info := checkout.UserInfo{Email: p.email}
	switch id := p.identity.(type) {
	case checkout.Guest:
		info.FirstName, info.LastName = id.FirstName, id.LastName
	case checkout.NewAccount:
		info.FirstName, info.LastName = id.FirstName, id.LastName
	}
	if p.customer != nil {
		info.FirstName, info.LastName = p.customer.FirstName, p.customer.LastName
	}
	if st.CustomerID != 0 {
		id := st.CustomerID
		info.CustomerID = &id
	}

	discountCode := ""
	if p.discount != nil {
		discountCode = p.discount.Code
		info.Discount = discountCode
	}

	data := &checkout.PurchaseData{
		Downloads:    st.Cart.DownloadIDs(),
		CartDetails:  checkout.BuildCartDetails(p.contents.Lines),
		Fees:         st.Fees.All(),
		Subtotal:     p.totals.Subtotal,
		Discount:     p.totals.Discount,
		DiscountCode: discountCode,
		FeeTotal:     p.totals.FeeTotal,
		Price:        p.totals.Total,
		Currency:     s.shop.Currency,
		PurchaseKey:  newPurchaseKey(p.email, now),
		Email:        p.email,
		Date:         now,
		UserInfo:     info,
		PostData:     publicFields(p.form),
		Gateway:      p.gateway,
	}

	for _, filter := range s.filters {
		if err := filter(ctx, data); err != nil {
			return nil, err
		}
	}

	if !data.Price.IsPositive() {
		data.Gateway = ManualGatewayID
	}
	return data, nil
}

func (s *CheckoutService) publishFailed(ctx context.Context, p *purchase, cause error) {
	if s.publisher == nil || p.data == nil {
		return
	}
	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		PurchaseKey: p.data.PurchaseKey,
		Gateway:     p.data.Gateway,
		Reason:      cause.Error(),
	}
	if err := s.publisher.PublishPaymentFailed(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish payment failed event", zap.Error(err))
	}
}

// newPurchaseKey returns an unguessable 32 character hex key
func newPurchaseKey(email string, at time.Time) string {
	sum := md5.Sum([]byte(email + at.Format(time.RFC3339Nano) + uuid.New().String()))
	return hex.EncodeToString(sum[:])
}

// purchaseIdempotencyKey identifies one submission of one cart. A resubmit
// of the same form maps to the same key; a new cart gets a new one.
func purchaseIdempotencyKey(sessionID, token string, cart *checkout.Cart) string {
	lines := make([]string, 0, cart.Len())
	for _, item := range cart.Items {
		lines = append(lines, item.Key)
	}
	name := sessionID + "|" + token + "|" + strings.Join(lines, ",")
	return "purchase:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func publicFields(form url.Values) map[string][]string {
	out := make(map[string][]string, len(form))
	for k, v := range form {
		out[k] = append([]string(nil), v...)
	}
	for _, k := range privateFields {
		delete(out, k)
	}
	return out
}

// lastStep extracts the saga step name prefixed onto err
func lastStep(err error) string {
	step, _, found := strings.Cut(err.Error(), ":")
	if !found {
		return "unknown"
	}
	return step
}
