package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cartdomain "github.com/fjod/print_shop/internal/cart/domain"
	"github.com/fjod/print_shop/internal/checkout/inventory"
	"github.com/fjod/print_shop/internal/checkout/repository"
	orderdomain "github.com/fjod/print_shop/internal/order/domain"
	orderrepo "github.com/fjod/print_shop/internal/order/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PriceDriftPolicy fixes what happens when the live catalog price differs
// from the cart snapshot at checkout.
type PriceDriftPolicy string

// HonorSnapshot charges priceAtTime regardless of the current catalog
// price. Drift is logged, never silently passed on to the customer.
const HonorSnapshot PriceDriftPolicy = "HONOR_SNAPSHOT"

const (
	driftPolicy              = HonorSnapshot
	priceDriftToleranceCents = 0
	maxOrderNumberAttempts   = 3
	revalidateConcurrency    = 8
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidRequest = errors.New("invalid checkout request")
)

type CartSource interface {
	GetActiveByUserID(ctx context.Context, userID int64) (*cartdomain.Cart, error)
}

type OrderLookup interface {
	ExistsForCart(ctx context.Context, cartID int64) (bool, error)
}

type Catalog interface {
	CurrentGrossPrice(ctx context.Context, articleID int64) (int64, error)
	ValidateVariant(ctx context.Context, articleID, variantID int64) error
}

type CacheInvalidator interface {
	Delete(ctx context.Context, userID int64) error
}

type ConvertRequest struct {
	CustomerEmail   string
	CustomerFirst   string
	CustomerLast    string
	CustomerPhone   *string
	ShippingAddress orderdomain.Address
	BillingAddress  *orderdomain.Address
	Notes           *string
	ObservedVersion *int64
}

type Service struct {
	carts     CartSource
	orders    OrderLookup
	converter repository.ConversionRepository
	catalog   Catalog
	inventory inventory.Service
	cache     CacheInvalidator
	strategy  TaxShippingStrategy
	now       func() time.Time
}

func NewService(
	carts CartSource,
	orders OrderLookup,
	converter repository.ConversionRepository,
	catalog Catalog,
	inv inventory.Service,
	cache CacheInvalidator,
	strategy TaxShippingStrategy,
) *Service {
	return &Service{
		carts:     carts,
		orders:    orders,
		converter: converter,
		catalog:   catalog,
		inventory: inv,
		cache:     cache,
		strategy:  strategy,
		now:       time.Now,
	}
}

// Convert turns the user's ACTIVE cart into a PENDING order. The order, its
// items, the cart status flip and the outbox event commit in one
// transaction; any failure leaves the cart ACTIVE and untouched.
func (s *Service) Convert(ctx context.Context, userID int64, req ConvertRequest) (*orderdomain.Order, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	cart, err := s.carts.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	exists, err := s.orders.ExistsForCart(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing order: %w", err)
	}
	if exists {
		return nil, orderrepo.ErrDuplicateCartOrder
	}

	version := cart.Version
	if req.ObservedVersion != nil {
		version = *req.ObservedVersion
	}

	currentPrices, err := s.revalidateItems(ctx, cart)
	if err != nil {
		return nil, err
	}
	logPriceDrift(cart, currentPrices)

	order := s.buildOrder(cart, &req)

	lines := make([]inventory.Line, len(cart.Items))
	for i, it := range cart.Items {
		lines[i] = inventory.Line{ArticleID: it.ArticleID, VariantID: it.VariantID, Quantity: it.Quantity}
	}
	reservationID, err := s.inventory.Reserve(ctx, lines)
	if err != nil {
		return nil, fmt.Errorf("reserve inventory: %w", err)
	}

	var convErr error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		var number string
		number, convErr = newOrderNumber(s.now())
		if convErr != nil {
			break
		}
		order.OrderNumber = number

		convErr = s.converter.CreateOrderFromCart(ctx, order, version)
		if !errors.Is(convErr, orderrepo.ErrOrderNumberTaken) {
			break
		}
		slog.Warn("order number collision, retrying", "orderNumber", number, "attempt", attempt+1)
	}
	if convErr != nil {
		if rerr := s.inventory.Release(ctx, reservationID); rerr != nil {
			slog.Error("release inventory reservation", "reservationId", reservationID, "error", rerr)
		}
		return nil, convErr
	}

	if cerr := s.inventory.Commit(ctx, reservationID); cerr != nil {
		slog.Error("commit inventory reservation", "reservationId", reservationID, "error", cerr)
	}
	if s.cache != nil {
		if derr := s.cache.Delete(ctx, userID); derr != nil {
			slog.Warn("invalidate cart cache", "userId", userID, "error", derr)
		}
	}

	slog.Info("cart converted to order",
		"userId", userID,
		"cartId", cart.ID,
		"orderId", order.ID,
		"orderNumber", order.OrderNumber,
		"totalAmount", order.TotalAmount)
	return order, nil
}

// revalidateItems re-checks every line against the live catalog and returns
// the current gross price per line, in item order.
func (s *Service) revalidateItems(ctx context.Context, cart *cartdomain.Cart) ([]int64, error) {
	prices := make([]int64, len(cart.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(revalidateConcurrency)
	for i := range cart.Items {
		it := &cart.Items[i]
		idx := i
		g.Go(func() error {
			if err := s.catalog.ValidateVariant(gctx, it.ArticleID, it.VariantID); err != nil {
				return err
			}
			price, err := s.catalog.CurrentGrossPrice(gctx, it.ArticleID)
			if err != nil {
				return err
			}
			prices[idx] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}

func logPriceDrift(cart *cartdomain.Cart, currentPrices []int64) {
	for i := range cart.Items {
		it := &cart.Items[i]
		drift := currentPrices[i] - it.PriceAtTime
		if drift < 0 {
			drift = -drift
		}
		if drift > priceDriftToleranceCents {
			slog.Warn("price drift at checkout, charging snapshot",
				"policy", string(driftPolicy),
				"cartId", cart.ID,
				"articleId", it.ArticleID,
				"priceAtTime", it.PriceAtTime,
				"currentPrice", currentPrices[i])
		}
	}
}

func (s *Service) buildOrder(cart *cartdomain.Cart, req *ConvertRequest) *orderdomain.Order {
	billing := req.BillingAddress
	if billing == nil {
		b := req.ShippingAddress
		billing = &b
	}

	orderID := uuid.New()
	items := make([]orderdomain.OrderItem, len(cart.Items))
	for i, it := range cart.Items {
		items[i] = orderdomain.OrderItem{
			ID:               uuid.New(),
			OrderID:          orderID,
			ArticleID:        it.ArticleID,
			VariantID:        it.VariantID,
			Quantity:         it.Quantity,
			PricePerItem:     it.PriceAtTime,
			TotalPrice:       it.TotalPrice(),
			GeneratedImageID: it.GeneratedImageID,
			PromptID:         it.PromptID,
			CustomData:       it.CustomData,
		}
	}

	subtotal := cart.TotalPrice()
	tax, shipping := s.strategy.Totals(subtotal, req.ShippingAddress)

	return &orderdomain.Order{
		ID:              orderID,
		UserID:          cart.UserID,
		CustomerEmail:   req.CustomerEmail,
		CustomerFirst:   req.CustomerFirst,
		CustomerLast:    req.CustomerLast,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Subtotal:        subtotal,
		TaxAmount:       tax,
		ShippingAmount:  shipping,
		TotalAmount:     subtotal + tax + shipping,
		Status:          orderdomain.OrderStatusPending,
		CartID:          cart.ID,
		Notes:           req.Notes,
		Items:           items,
	}
}

func validateRequest(req *ConvertRequest) error {
	switch {
	case req.CustomerEmail == "":
		return fmt.Errorf("%w: customer email is required", ErrInvalidRequest)
	case req.CustomerFirst == "" || req.CustomerLast == "":
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	}

	a := req.ShippingAddress
	if a.Street1 == "" || a.City == "" || a.State == "" || a.PostalCode == "" || a.Country == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrInvalidRequest)
	}
	if b := req.BillingAddress; b != nil {
		if b.Street1 == "" || b.City == "" || b.State == "" || b.PostalCode == "" || b.Country == "" {
			return fmt.Errorf("%w: billing address is incomplete", ErrInvalidRequest)
		}
	}
	return nil
}
