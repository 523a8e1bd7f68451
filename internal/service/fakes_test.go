package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/nonce"
	"storefront/internal/redisclient"
	"storefront/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory stand-in for *store.Store
type memStore struct {
	mu sync.Mutex

	downloads map[int64]*models.Download
	discounts map[string]*models.Discount
	redeemed  map[string]bool
	customers map[int64]*models.Customer
	payments  []*models.Payment
	items     []models.PaymentItem
	fees      []models.PaymentFee
	processed map[string]bool
	sales     map[int64]int
	earnings  map[int64]decimal.Decimal
	uses      map[string]int64
	nextID    int64

	paymentErr   error
	// saleFailures fails stats for a download id that many times
	saleFailures map[int64]int
}

func newMemStore() *memStore {
	return &memStore{
		downloads: make(map[int64]*models.Download),
		discounts: make(map[string]*models.Discount),
		redeemed:  make(map[string]bool),
		customers: make(map[int64]*models.Customer),
		processed: make(map[string]bool),
		sales:     make(map[int64]int),
		earnings:  make(map[int64]decimal.Decimal),
		uses:      make(map[string]int64),

		saleFailures: make(map[int64]int),
	}
}

func (m *memStore) addDownload(id int64, title, price string) *models.Download {
	d := &models.Download{
		ID:     id,
		Title:  title,
		Status: models.DownloadStatusPublished,
		Price:  decimal.RequireFromString(price),
	}
	m.downloads[id] = d
	return d
}

func (m *memStore) addDiscount(d *models.Discount) {
	if d.Status == "" {
		d.Status = models.DiscountStatusActive
	}
	m.discounts[strings.ToUpper(d.Code)] = d
}

func (m *memStore) GetDownloadByID(_ context.Context, id int64) (*models.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[id]
	if !ok {
		return nil, fmt.Errorf("download %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func (m *memStore) GetDownloadsByIDs(_ context.Context, ids []int64) (map[int64]*models.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*models.Download)
	for _, id := range ids {
		if d, ok := m.downloads[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (m *memStore) ListDownloads(context.Context) ([]models.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		if d.Status == models.DownloadStatusPublished {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetDiscountByCode(_ context.Context, code string) (*models.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("discount %q: %w", code, store.ErrNotFound)
	}
	return d, nil
}

func (m *memStore) HasCustomerUsedDiscount(_ context.Context, code, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redeemed[strings.ToUpper(code)+"|"+strings.ToLower(email)], nil
}

func (m *memStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.customers[c.ID] = c
	return nil
}

func (m *memStore) DeleteCustomer(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customers, id)
	return nil
}

func (m *memStore) GetCustomerByID(_ context.Context, id int64) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetCustomerByLogin(_ context.Context, login string) (*models.Customer, error) {
	return m.findCustomer(func(c *models.Customer) bool { return strings.EqualFold(c.Login, login) })
}

func (m *memStore) GetCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	return m.findCustomer(func(c *models.Customer) bool { return strings.EqualFold(c.Email, email) })
}

func (m *memStore) findCustomer(match func(*models.Customer) bool) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if match(c) {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) addCustomer(t *testing.T, login, email, password string) *models.Customer {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	c := &models.Customer{Login: login, Email: email, FirstName: "Ada", LastName: "Lovelace", PasswordHash: string(hash)}
	require.NoError(t, m.CreateCustomer(context.Background(), c))
	return c
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment, items []models.PaymentItem, fees []models.PaymentFee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paymentErr != nil {
		return m.paymentErr
	}
	if p.DiscountCode != "" {
		d, ok := m.discounts[strings.ToUpper(p.DiscountCode)]
		if ok && d.MaxUses > 0 && d.Uses >= d.MaxUses {
			return fmt.Errorf("discount %q: %w", p.DiscountCode, store.ErrDiscountMaxed)
		}
		if ok {
			d.Uses++
		}
		m.uses[strings.ToUpper(p.DiscountCode)]++
	}
	m.nextID++
	p.ID = m.nextID
	m.payments = append(m.payments, p)
	for _, item := range items {
		item.PaymentID = p.ID
		m.items = append(m.items, item)
	}
	for _, fee := range fees {
		fee.PaymentID = p.ID
		m.fees = append(m.fees, fee)
	}
	return nil
}

func (m *memStore) GetPaymentByPurchaseKey(_ context.Context, key string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PurchaseKey == key {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetPaymentItems(_ context.Context, paymentID int64) ([]models.PaymentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentItem
	for _, item := range m.items {
		if item.PaymentID == paymentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) GetPaymentFees(_ context.Context, paymentID int64) ([]models.PaymentFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentFee
	for _, fee := range m.fees {
		if fee.PaymentID == paymentID {
			out = append(out, fee)
		}
	}
	return out, nil
}

func (m *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[eventID], nil
}

func (m *memStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = true
	return nil
}

// RecordPurchaseStats stages every item and applies nothing if one fails
func (m *memStore) RecordPurchaseStats(_ context.Context, eventID, _ string, items []models.PaymentItemData) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[eventID] {
		return false, nil
	}
	for _, item := range items {
		if m.saleFailures[item.DownloadID] > 0 {
			m.saleFailures[item.DownloadID]--
			return false, fmt.Errorf("failed to record sale for download %d", item.DownloadID)
		}
	}
	for _, item := range items {
		m.sales[item.DownloadID]++
		m.earnings[item.DownloadID] = m.earnings[item.DownloadID].Add(item.Amount)
	}
	m.processed[eventID] = true
	return true, nil
}

// recordingPublisher keeps published events in memory
type recordingPublisher struct {
	mu        sync.Mutex
	completed []*models.PaymentCompletedEvent
	failed    []*models.PaymentFailedEvent
}

func (p *recordingPublisher) PublishPaymentCompleted(_ context.Context, e *models.PaymentCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

// failingGateway rejects every purchase
type failingGateway struct{ id string }

func (g failingGateway) ID() string    { return g.id }
func (g failingGateway) Label() string { return "Always fails" }
func (g failingGateway) Process(context.Context, *checkout.PurchaseData) (*GatewayResult, error) {
	return nil, fmt.Errorf("card declined")
}

// harness wires every service against memStore and miniredis
type harness struct {
	store     *memStore
	publisher *recordingPublisher
	nonces    *nonce.Manager
	gateways  *GatewayRegistry
	cart      *CartService
	discounts *DiscountService
	customers *CustomerService
	checkout  *CheckoutService
	redis     *miniredis.Miniredis
	shop      config.ShopConfig
}

func newHarness(t *testing.T, mutate func(*config.ShopConfig)) *harness {
	t.Helper()

	shop := config.ShopConfig{
		Currency:         "USD",
		CurrencyPosition: "before",
		ThousandsSep:     ",",
		DecimalSep:       ".",
		AllowGuest:       true,
		DefaultGateway:   ManualGatewayID,
		EnabledGateways:  []string{ManualGatewayID},
		CheckoutPath:     "/checkout",
		SuccessPath:      "/checkout/success",
		PurchaseKeyTTL:   time.Minute,
	}
	if mutate != nil {
		mutate(&shop)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		nonces:    nonce.NewManager("test-secret", time.Hour),
		redis:     mr,
		shop:      shop,
	}
	h.gateways = NewGatewayRegistry(shop.EnabledGateways)
	h.gateways.Register(NewManualGateway(h.store, h.publisher))

	h.cart = NewCartService(h.store, h.store, FormatFromShop(shop))
	h.discounts = NewDiscountService(h.store, h.cart)
	h.customers = NewCustomerService(h.store)
	h.customers.cost = bcrypt.MinCost
	h.checkout = NewCheckoutService(h.cart, h.discounts, h.customers, h.gateways, h.nonces,
		redisclient.Wrap(rdb), h.publisher, shop)
	return h
}

func newState() *checkout.State {
	return &checkout.State{Errors: checkout.Errors{}}
}
