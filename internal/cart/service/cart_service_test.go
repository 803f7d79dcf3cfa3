package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/print_shop/internal/cart/cache"
	"github.com/fjod/print_shop/internal/cart/domain"
	"github.com/fjod/print_shop/internal/cart/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// mockRepository mimics the postgres compare-and-increment semantics in memory.
type mockRepository struct {
	mu     sync.Mutex
	nextID int64
	carts  map[int64]*domain.Cart

	insertCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{nextID: 1, carts: map[int64]*domain.Cart{}}
}

func (m *mockRepository) GetActiveByUserID(_ context.Context, userID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID && c.Status == domain.CartStatusActive {
			return copyCart(c), nil
		}
	}
	return nil, repository.ErrCartNotFound
}

func (m *mockRepository) GetByID(_ context.Context, cartID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *mockRepository) CreateActive(_ context.Context, userID int64, expiresAt time.Time) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID && c.Status == domain.CartStatusActive {
			return nil, repository.ErrActiveCartExists
		}
	}
	c := &domain.Cart{
		ID:        m.nextID,
		UserID:    userID,
		Status:    domain.CartStatusActive,
		ExpiresAt: &expiresAt,
	}
	m.nextID++
	m.carts[c.ID] = c
	return copyCart(c), nil
}

func (m *mockRepository) casLocked(cartID, expectedVersion int64) (*domain.Cart, error) {
	c, ok := m.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if c.Status != domain.CartStatusActive {
		return nil, repository.ErrCartNotActive
	}
	if c.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}
	c.Version++
	return c, nil
}

func (m *mockRepository) InsertItem(_ context.Context, cartID, expectedVersion int64, item *domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	c, err := m.casLocked(cartID, expectedVersion)
	if err != nil {
		return err
	}
	item.ID = m.nextID
	m.nextID++
	c.Items = append(c.Items, *item)
	return nil
}

func (m *mockRepository) UpdateItem(_ context.Context, cartID, itemID, expectedVersion int64, quantity int, customData map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.casLocked(cartID, expectedVersion)
	if err != nil {
		return err
	}
	it := c.Item(itemID)
	if it == nil {
		return repository.ErrItemNotFound
	}
	it.Quantity = quantity
	if customData != nil {
		it.CustomData = customData
	}
	return nil
}

func (m *mockRepository) DeleteItem(_ context.Context, cartID, itemID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.casLocked(cartID, expectedVersion)
	if err != nil {
		return err
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			for j := range c.Items {
				c.Items[j].Position = j
			}
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (m *mockRepository) DeleteAllItems(_ context.Context, cartID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.casLocked(cartID, expectedVersion)
	if err != nil {
		return err
	}
	c.Items = nil
	return nil
}

func (m *mockRepository) UpdateOriginalPrices(_ context.Context, cartID, expectedVersion int64, prices map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.casLocked(cartID, expectedVersion)
	if err != nil {
		return err
	}
	for itemID, price := range prices {
		if it := c.Item(itemID); it != nil {
			it.OriginalPrice = price
		}
	}
	return nil
}

func (m *mockRepository) MarkExpiredAbandoned(_ context.Context, now time.Time) ([]int64, error) {
	return nil, nil
}

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem(nil), c.Items...)
	return &out
}

type noopCache struct {
	mu      sync.Mutex
	deletes int
}

func (n *noopCache) Get(context.Context, int64) (*domain.Cart, error) {
	return nil, cache.ErrCacheMiss
}
func (n *noopCache) Set(context.Context, int64, *domain.Cart) error { return nil }
func (n *noopCache) Delete(context.Context, int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletes++
	return nil
}

type stubCatalog struct {
	prices map[int64]int64
}

func (s *stubCatalog) CurrentGrossPrice(_ context.Context, articleID int64) (int64, error) {
	return s.prices[articleID], nil
}
func (s *stubCatalog) ValidateVariant(context.Context, int64, int64) error { return nil }

func newTestService() (*Service, *mockRepository, *noopCache, *stubCatalog) {
	repo := newMockRepository()
	c := &noopCache{}
	catalog := &stubCatalog{prices: map[int64]int64{10: 500, 11: 300}}
	return NewService(repo, c, catalog, 30*24*time.Hour), repo, c, catalog
}

func TestAddItem_CreatesCartAndIncreasesCount(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, cart.TotalItemCount())
	assert.Equal(t, int64(500), cart.Items[0].PriceAtTime)
	assert.Equal(t, int64(500), cart.Items[0].OriginalPrice)
	assert.Equal(t, int64(1), cart.Version, "add must bump the version")
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	svc, repo, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, repo.insertCalls, "nothing may be persisted")
	assert.Empty(t, repo.carts, "no cart may be created")
}

func TestAddItem_MergesMatchingLine(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	data := map[string]any{"crop": "square"}

	_, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1, CustomData: data})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 2, CustomData: data})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestAddItem_DifferentCustomDataAppends(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1, CustomData: map[string]any{"crop": "square"}})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1, CustomData: map[string]any{"crop": "wide"}})
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, 1, cart.Items[1].Position)
}

func TestRemoveItem_NotFoundLeavesVersionUnchanged(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	before := cart.Version

	_, err = svc.RemoveItem(ctx, 7, 9999, nil)
	assert.ErrorIs(t, err, repository.ErrItemNotFound)

	after, err := svc.GetCart(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, before, after.Version)
}

func TestConcurrentUpdates_ExactlyOneWins(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	itemID := cart.Items[0].ID
	observed := cart.Version

	results := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.UpdateItem(ctx, 7, itemID, 5+i, nil, &observed)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var conflicts, successes int
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, repository.ErrVersionConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestRefreshPrices_UpdatesOriginalOnly(t *testing.T) {
	svc, _, _, catalog := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	require.False(t, cart.Items[0].HasPriceChanged())

	catalog.prices[10] = 550

	cart, err = svc.RefreshPrices(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(500), cart.Items[0].PriceAtTime, "snapshot must not move")
	assert.Equal(t, int64(550), cart.Items[0].OriginalPrice)
	assert.True(t, cart.Items[0].HasPriceChanged())
}

func TestRefreshPrices_NoChangeIsNoop(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	before := cart.Version

	cart, err = svc.RefreshPrices(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, before, cart.Version)
}

func TestGetCart_NoCartReturnsEmpty(t *testing.T) {
	svc, _, _, _ := newTestService()

	cart, err := svc.GetCart(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Zero(t, cart.ID)
}

func TestSummary(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 7, AddItemParams{ArticleID: 11, VariantID: 110, Quantity: 2})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ItemCount)
	assert.Equal(t, int64(1100), sum.TotalPrice)
	assert.True(t, sum.HasItems)
}

func TestMutationsInvalidateCache(t *testing.T) {
	svc, _, c, _ := newTestService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 7, AddItemParams{ArticleID: 10, VariantID: 100, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, 7, cart.Items[0].ID, nil)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.GreaterOrEqual(t, c.deletes, 2)
}
