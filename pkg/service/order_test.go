package service

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyer = "buyer@example.com"

func TestCreateOrder_SnapshotsCartAndEmptiesIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := repotest.SeedUser(t, h.store, buyer)
	a := repotest.SeedProduct(t, h.store, "A", 10.00)
	b := repotest.SeedProduct(t, h.store, "B", 5.00)
	cart := repotest.SeedCart(t, h.store, user, map[*models.Product]int{a: 2, b: 1})

	order, err := h.orders.CreateOrder(ctx, buyer, "1 Main St")
	require.NoError(t, err)

	assert.Equal(t, 25.00, order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)

	stored, err := h.store.GetUserOrder(ctx, user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "25", models.SumItems(stored.Items).String())

	after, err := h.store.FindCart(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, after, "cart container is kept")
	assert.Equal(t, cart.ID, after.ID)
	assert.Empty(t, after.Items)

	assert.Contains(t, h.events.types(), events.OrderCreated)
}

func TestCreateOrder_UsesCurrentPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := repotest.SeedUser(t, h.store, buyer)
	a := repotest.SeedProduct(t, h.store, "A", 10.00)
	repotest.SeedCart(t, h.store, user, map[*models.Product]int{a: 3})

	a.Price = 12.50
	require.NoError(t, h.store.UpdateProduct(ctx, a))

	order, err := h.orders.CreateOrder(ctx, buyer, "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, 37.50, order.TotalAmount)
	assert.Equal(t, 12.50, order.Items[0].Price)
}

func TestCreateOrder_EmptyOrMissingCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := repotest.SeedUser(t, h.store, buyer)

	_, err := h.orders.CreateOrder(ctx, buyer, "1 Main St")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart, "no cart at all")

	repotest.SeedCart(t, h.store, user, nil)
	_, err = h.orders.CreateOrder(ctx, buyer, "1 Main St")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart, "cart without lines")

	_, total, err := h.store.ListOrders(ctx, repository.OrderFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, h.events.types())
}

func TestCreateOrder_RequiresAddress(t *testing.T) {
	h := newHarness(t)
	user := repotest.SeedUser(t, h.store, buyer)
	a := repotest.SeedProduct(t, h.store, "A", 1)
	repotest.SeedCart(t, h.store, user, map[*models.Product]int{a: 1})

	_, err := h.orders.CreateOrder(context.Background(), buyer, "   ")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	cart, err := h.store.FindCart(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "cart untouched")
}

func TestCreateOrder_EvictsOrderViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := repotest.SeedUser(t, h.store, buyer)
	a := repotest.SeedProduct(t, h.store, "A", 4)

	page, err := h.orders.ListOrders(ctx, buyer, OrderQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	repotest.SeedCart(t, h.store, user, map[*models.Product]int{a: 1})
	_, err = h.orders.CreateOrder(ctx, buyer, "1 Main St")
	require.NoError(t, err)

	page, err = h.orders.ListOrders(ctx, buyer, OrderQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "stale cached list must be gone")
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := repotest.SeedUser(t, h.store, buyer)
	repotest.SeedUser(t, h.store, "other@example.com")
	order := repotest.SeedOrder(t, h.store, owner, 10)

	got, err := h.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	var cached models.Order
	ok, err := h.cache.Get(ctx, cache.OrderKey(buyer, order.ID), &cached)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.orders.GetOrder(ctx, "other@example.com", order.ID)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := repotest.SeedUser(t, h.store, buyer)
	order := repotest.SeedOrder(t, h.store, owner, 10)

	_, err := h.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)

	updated, err := h.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)

	got, err := h.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status, "cached view evicted")

	_, err = h.orders.UpdateOrderStatus(ctx, order.ID, "lost", "admin@example.com")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}
