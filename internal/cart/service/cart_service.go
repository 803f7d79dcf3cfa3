package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/print_shop/internal/cart/cache"
	"github.com/fjod/print_shop/internal/cart/domain"
	"github.com/fjod/print_shop/internal/cart/repository"
	"golang.org/x/sync/singleflight"
)

const maxItemQuantity = 99

var ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")

// Catalog is the read capability the cart needs from the catalog module.
type Catalog interface {
	CurrentGrossPrice(ctx context.Context, articleID int64) (int64, error)
	ValidateVariant(ctx context.Context, articleID, variantID int64) error
}

type AddItemParams struct {
	ArticleID        int64
	VariantID        int64
	Quantity         int
	CustomData       map[string]any
	GeneratedImageID *int64
	PromptID         *int64
	// ObservedVersion is the cart version the client last saw. When nil the
	// version read in this request is used, which still serializes against
	// concurrent writers.
	ObservedVersion *int64
}

type Summary struct {
	ItemCount  int   `json:"itemCount"`
	TotalPrice int64 `json:"totalPrice"`
	HasItems   bool  `json:"hasItems"`
}

type Service struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog Catalog
	sfg     singleflight.Group // prevents cache stampede
	expiry  time.Duration
}

func NewService(repo repository.CartRepository, cartCache cache.CartCache, catalog Catalog, expiry time.Duration) *Service {
	return &Service{
		repo:    repo,
		cache:   cartCache,
		catalog: catalog,
		expiry:  expiry,
	}
}

// GetCart returns the user's active cart. A user without one gets an empty,
// unpersisted cart; persistence starts with the first AddItem.
func (s *Service) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(fmt.Sprint(userID), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.Warn("cart cache get failed", "error", err)
		}

		cart, errGet := s.repo.GetActiveByUserID(ctx, userID)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			return &domain.Cart{
				UserID:    userID,
				Status:    domain.CartStatusActive,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(cacheCtx, userID, cart); errSet != nil {
				slog.Warn("cart cache set failed", "error", errSet)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *Service) Summary(ctx context.Context, userID int64) (*Summary, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		ItemCount:  cart.TotalItemCount(),
		TotalPrice: cart.TotalPrice(),
		HasItems:   !cart.IsEmpty(),
	}, nil
}

// AddItem validates the request, snapshots the current price and appends or
// merges the cart line. The user's active cart is created on first add.
func (s *Service) AddItem(ctx context.Context, userID int64, p AddItemParams) (*domain.Cart, error) {
	if p.Quantity <= 0 || p.Quantity > maxItemQuantity {
		return nil, ErrInvalidQuantity
	}
	if err := s.catalog.ValidateVariant(ctx, p.ArticleID, p.VariantID); err != nil {
		return nil, err
	}
	price, err := s.catalog.CurrentGrossPrice(ctx, p.ArticleID)
	if err != nil {
		return nil, err
	}

	cart, err := s.getOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	version := cart.Version
	if p.ObservedVersion != nil {
		version = *p.ObservedVersion
	}

	item := &domain.CartItem{
		CartID:           cart.ID,
		ArticleID:        p.ArticleID,
		VariantID:        p.VariantID,
		Quantity:         p.Quantity,
		PriceAtTime:      price,
		OriginalPrice:    price,
		CustomData:       p.CustomData,
		GeneratedImageID: p.GeneratedImageID,
		PromptID:         p.PromptID,
		Position:         cart.NextPosition(),
	}

	if existing := cart.FindMatching(item); existing != nil {
		err = s.repo.UpdateItem(ctx, cart.ID, existing.ID, version, existing.Quantity+p.Quantity, nil)
	} else {
		err = s.repo.InsertItem(ctx, cart.ID, version, item)
	}
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, userID)
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, quantity int, customData map[string]any, observedVersion *int64) (*domain.Cart, error) {
	if quantity <= 0 || quantity > maxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Item(itemID) == nil {
		return nil, repository.ErrItemNotFound
	}
	version := cart.Version
	if observedVersion != nil {
		version = *observedVersion
	}

	if err := s.repo.UpdateItem(ctx, cart.ID, itemID, version, quantity, customData); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64, observedVersion *int64) (*domain.Cart, error) {
	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Item(itemID) == nil {
		return nil, repository.ErrItemNotFound
	}
	version := cart.Version
	if observedVersion != nil {
		version = *observedVersion
	}

	if err := s.repo.DeleteItem(ctx, cart.ID, itemID, version); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID int64, observedVersion *int64) (*domain.Cart, error) {
	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	version := cart.Version
	if observedVersion != nil {
		version = *observedVersion
	}

	if err := s.repo.DeleteAllItems(ctx, cart.ID, version); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

// RefreshPrices re-resolves the current price of every line and stores it in
// OriginalPrice so clients can surface drift. PriceAtTime stays untouched.
func (s *Service) RefreshPrices(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := make(map[int64]int64)
	for i := range cart.Items {
		it := &cart.Items[i]
		current, err := s.catalog.CurrentGrossPrice(ctx, it.ArticleID)
		if err != nil {
			// article retired since it was added; keep the last known price
			slog.Warn("price refresh skipped item", "cartItemId", it.ID, "articleId", it.ArticleID, "error", err)
			continue
		}
		if current != it.OriginalPrice {
			changed[it.ID] = current
		}
	}
	if len(changed) == 0 {
		return cart, nil
	}

	if err := s.repo.UpdateOriginalPrices(ctx, cart.ID, cart.Version, changed); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *Service) getOrCreateActive(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	cart, err = s.repo.CreateActive(ctx, userID, time.Now().Add(s.expiry))
	if errors.Is(err, repository.ErrActiveCartExists) {
		// someone else created it concurrently
		return s.repo.GetActiveByUserID(ctx, userID)
	}
	return cart, err
}

func (s *Service) reload(ctx context.Context, userID int64) (*domain.Cart, error) {
	s.invalidateCache(userID)
	return s.repo.GetActiveByUserID(ctx, userID)
}

func (s *Service) invalidateCache(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.Warn("cart cache invalidate failed", "error", err)
	}
}
