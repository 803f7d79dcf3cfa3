package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	cartdomain "github.com/fjod/print_shop/internal/cart/domain"
	cartrepo "github.com/fjod/print_shop/internal/cart/repository"
	catalogrepo "github.com/fjod/print_shop/internal/catalog/repository"
	"github.com/fjod/print_shop/internal/checkout/inventory"
	orderdomain "github.com/fjod/print_shop/internal/order/domain"
	orderrepo "github.com/fjod/print_shop/internal/order/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// backend fakes the cart, order and conversion stores behind one mutex so
// concurrent Convert calls see a consistent picture.
type backend struct {
	mu             sync.Mutex
	cart           *cartdomain.Cart
	orders         map[int64]*orderdomain.Order
	numbers        map[string]bool
	numberFailures int
}

func newBackend(cart *cartdomain.Cart) *backend {
	return &backend{
		cart:    cart,
		orders:  make(map[int64]*orderdomain.Order),
		numbers: make(map[string]bool),
	}
}

func (b *backend) GetActiveByUserID(_ context.Context, userID int64) (*cartdomain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cart == nil || b.cart.UserID != userID || b.cart.Status != cartdomain.CartStatusActive {
		return nil, cartrepo.ErrCartNotFound
	}
	cp := *b.cart
	cp.Items = append([]cartdomain.CartItem(nil), b.cart.Items...)
	return &cp, nil
}

func (b *backend) ExistsForCart(_ context.Context, cartID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orders[cartID]
	return ok, nil
}

func (b *backend) CreateOrderFromCart(_ context.Context, o *orderdomain.Order, cartVersion int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.numberFailures > 0 {
		b.numberFailures--
		return orderrepo.ErrOrderNumberTaken
	}
	if b.numbers[o.OrderNumber] {
		return orderrepo.ErrOrderNumberTaken
	}
	if _, ok := b.orders[o.CartID]; ok {
		return orderrepo.ErrDuplicateCartOrder
	}
	if b.cart == nil || b.cart.ID != o.CartID {
		return cartrepo.ErrCartNotFound
	}
	if b.cart.Status != cartdomain.CartStatusActive {
		return cartrepo.ErrCartNotActive
	}
	if b.cart.Version != cartVersion {
		return cartrepo.ErrVersionConflict
	}

	b.cart.Status = cartdomain.CartStatusConverted
	b.cart.Version++
	cp := *o
	b.orders[o.CartID] = &cp
	b.numbers[o.OrderNumber] = true
	return nil
}

type stubCatalog struct {
	prices      map[int64]int64
	badVariants map[int64]bool
}

func (s *stubCatalog) CurrentGrossPrice(_ context.Context, articleID int64) (int64, error) {
	price, ok := s.prices[articleID]
	if !ok {
		return 0, catalogrepo.ErrArticleNotFound
	}
	return price, nil
}

func (s *stubCatalog) ValidateVariant(_ context.Context, _, variantID int64) error {
	if s.badVariants[variantID] {
		return catalogrepo.ErrVariantNotFound
	}
	return nil
}

type recInventory struct {
	mu       sync.Mutex
	reserves int
	commits  int
	releases int
}

func (r *recInventory) Reserve(_ context.Context, _ []inventory.Line) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserves++
	return "res-1", nil
}

func (r *recInventory) Commit(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
	return nil
}

func (r *recInventory) Release(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	return nil
}

type countingCache struct {
	mu      sync.Mutex
	deletes int
}

func (c *countingCache) Delete(_ context.Context, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	return nil
}

type fixedTotals struct {
	tax      int64
	shipping int64
}

func (f fixedTotals) Totals(int64, orderdomain.Address) (int64, int64) { return f.tax, f.shipping }

// recordingStrategy captures what the converter hands to the strategy.
type recordingStrategy struct {
	subtotal int64
	shipTo   orderdomain.Address
}

func (r *recordingStrategy) Totals(subtotal int64, shipTo orderdomain.Address) (int64, int64) {
	r.subtotal = subtotal
	r.shipTo = shipTo
	return 0, 0
}

func testCart() *cartdomain.Cart {
	return &cartdomain.Cart{
		ID:      10,
		UserID:  42,
		Status:  cartdomain.CartStatusActive,
		Version: 3,
		Items: []cartdomain.CartItem{
			{ID: 1, CartID: 10, ArticleID: 100, VariantID: 1000, Quantity: 1, PriceAtTime: 500, OriginalPrice: 500, Position: 0},
			{ID: 2, CartID: 10, ArticleID: 200, VariantID: 2000, Quantity: 2, PriceAtTime: 300, OriginalPrice: 300, Position: 1},
		},
	}
}

func testCatalog() *stubCatalog {
	return &stubCatalog{prices: map[int64]int64{100: 500, 200: 300}}
}

func validRequest() ConvertRequest {
	return ConvertRequest{
		CustomerEmail: "max@example.com",
		CustomerFirst: "Max",
		CustomerLast:  "Mustermann",
		ShippingAddress: orderdomain.Address{
			Street1:    "Hauptstr. 1",
			City:       "Berlin",
			State:      "BE",
			PostalCode: "10115",
			Country:    "DE",
		},
	}
}

func newTestService(b *backend, cat Catalog, inv inventory.Service, cache CacheInvalidator, strategy TaxShippingStrategy) *Service {
	return NewService(b, b, b, cat, inv, cache, strategy)
}

func TestConvert_HappyPath(t *testing.T) {
	b := newBackend(testCart())
	inv := &recInventory{}
	cache := &countingCache{}
	svc := newTestService(b, testCatalog(), inv, cache, fixedTotals{tax: 100, shipping: 50})

	order, err := svc.Convert(context.Background(), 42, validRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1100), order.Subtotal)
	assert.Equal(t, int64(100), order.TaxAmount)
	assert.Equal(t, int64(50), order.ShippingAmount)
	assert.Equal(t, int64(1250), order.TotalAmount)
	assert.Equal(t, orderdomain.OrderStatusPending, order.Status)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{6}$`), order.OrderNumber)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(500), order.Items[0].PricePerItem)
	assert.Equal(t, int64(600), order.Items[1].TotalPrice)

	assert.Equal(t, cartdomain.CartStatusConverted, b.cart.Status)
	assert.Equal(t, int64(4), b.cart.Version)
	assert.Equal(t, 1, inv.reserves)
	assert.Equal(t, 1, inv.commits)
	assert.Equal(t, 0, inv.releases)
	assert.Equal(t, 1, cache.deletes)
}

func TestConvert_BillingFallsBackToShipping(t *testing.T) {
	b := newBackend(testCart())
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, FlatRate{TaxRate: 0.08, ShippingCents: 499})

	req := validRequest()
	order, err := svc.Convert(context.Background(), 42, req)
	require.NoError(t, err)

	require.NotNil(t, order.BillingAddress)
	assert.Equal(t, req.ShippingAddress, *order.BillingAddress)
	assert.Equal(t, int64(88), order.TaxAmount)
	assert.Equal(t, int64(499), order.ShippingAmount)
	assert.Equal(t, int64(1100+88+499), order.TotalAmount)
}

func TestConvert_ChargesSnapshotOnDrift(t *testing.T) {
	cat := testCatalog()
	cat.prices[100] = 900 // catalog price moved after the item was added
	b := newBackend(testCart())
	svc := newTestService(b, cat, &recInventory{}, &countingCache{}, fixedTotals{})

	order, err := svc.Convert(context.Background(), 42, validRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(500), order.Items[0].PricePerItem)
	assert.Equal(t, int64(1100), order.Subtotal)
}

func TestConvert_StrategyGetsSubtotalAndDestination(t *testing.T) {
	b := newBackend(testCart())
	strategy := &recordingStrategy{}
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, strategy)

	req := validRequest()
	_, err := svc.Convert(context.Background(), 42, req)
	require.NoError(t, err)

	assert.Equal(t, int64(1100), strategy.subtotal)
	assert.Equal(t, req.ShippingAddress, strategy.shipTo)
}

func TestConvert_EmptyCart(t *testing.T) {
	cart := testCart()
	cart.Items = nil
	b := newBackend(cart)
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestConvert_NoActiveCart(t *testing.T) {
	b := newBackend(nil)
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, cartrepo.ErrCartNotFound)
}

func TestConvert_DuplicateOrder(t *testing.T) {
	b := newBackend(testCart())
	b.orders[10] = &orderdomain.Order{CartID: 10}
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, orderrepo.ErrDuplicateCartOrder)
}

func TestConvert_StaleObservedVersion(t *testing.T) {
	b := newBackend(testCart())
	inv := &recInventory{}
	svc := newTestService(b, testCatalog(), inv, &countingCache{}, fixedTotals{})

	stale := int64(2)
	req := validRequest()
	req.ObservedVersion = &stale

	_, err := svc.Convert(context.Background(), 42, req)
	assert.ErrorIs(t, err, cartrepo.ErrVersionConflict)
	assert.Equal(t, cartdomain.CartStatusActive, b.cart.Status)
	assert.Equal(t, 1, inv.releases)
	assert.Equal(t, 0, inv.commits)
}

func TestConvert_InactiveArticleAborts(t *testing.T) {
	cat := testCatalog()
	delete(cat.prices, 200)
	b := newBackend(testCart())
	inv := &recInventory{}
	svc := newTestService(b, cat, inv, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, catalogrepo.ErrArticleNotFound)
	assert.Equal(t, cartdomain.CartStatusActive, b.cart.Status)
	assert.Equal(t, 0, inv.reserves)
}

func TestConvert_BadVariantAborts(t *testing.T) {
	cat := testCatalog()
	cat.badVariants = map[int64]bool{2000: true}
	b := newBackend(testCart())
	svc := newTestService(b, cat, &recInventory{}, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, catalogrepo.ErrVariantNotFound)
}

func TestConvert_RetriesOrderNumberCollision(t *testing.T) {
	b := newBackend(testCart())
	b.numberFailures = 2
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	order, err := svc.Convert(context.Background(), 42, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Len(t, b.orders, 1)
}

func TestConvert_GivesUpAfterRepeatedCollisions(t *testing.T) {
	b := newBackend(testCart())
	b.numberFailures = maxOrderNumberAttempts
	inv := &recInventory{}
	svc := newTestService(b, testCatalog(), inv, &countingCache{}, fixedTotals{})

	_, err := svc.Convert(context.Background(), 42, validRequest())
	assert.ErrorIs(t, err, orderrepo.ErrOrderNumberTaken)
	assert.Equal(t, 1, inv.releases)
}

func TestConvert_ConcurrentDoubleSubmit(t *testing.T) {
	b := newBackend(testCart())
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	results := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		idx := i
		g.Go(func() error {
			_, results[idx] = svc.Convert(context.Background(), 42, validRequest())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, conflict int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		default:
			conflict++
		}
	}
	assert.Equal(t, 1, ok, "exactly one conversion must win")
	assert.Equal(t, 1, conflict)
	assert.Len(t, b.orders, 1)
	assert.Equal(t, cartdomain.CartStatusConverted, b.cart.Status)
}

func TestConvert_ValidatesRequest(t *testing.T) {
	b := newBackend(testCart())
	svc := newTestService(b, testCatalog(), &recInventory{}, &countingCache{}, fixedTotals{})

	cases := []struct {
		name   string
		mutate func(*ConvertRequest)
	}{
		{"missing email", func(r *ConvertRequest) { r.CustomerEmail = "" }},
		{"missing name", func(r *ConvertRequest) { r.CustomerLast = "" }},
		{"missing street", func(r *ConvertRequest) { r.ShippingAddress.Street1 = "" }},
		{"incomplete billing", func(r *ConvertRequest) {
			r.BillingAddress = &orderdomain.Address{Street1: "Other St. 2"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Convert(context.Background(), 42, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestNewOrderNumber_Format(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	n, err := newOrderNumber(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260831-[0-9A-F]{6}$`), n)
}
