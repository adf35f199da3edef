package service

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProductService(t *testing.T) {
	deps := Deps{Store: repotest.NewStore(t)}

	svc, err := NewProductService("", deps)
	require.NoError(t, err)
	assert.IsType(t, &DBProductService{}, svc)

	svc, err = NewProductService(CatalogCached, deps)
	require.NoError(t, err)
	assert.IsType(t, &CachedProductService{}, svc)

	_, err = NewProductService("elastic", deps)
	assert.Error(t, err)
}

func TestCachedProductService(t *testing.T) {
	store := repotest.NewStore(t)
	mem := cache.NewMemoryCache()
	svc, err := NewProductService(CatalogCached, Deps{
		Store:  store,
		Cache:  cache.NewLoader(mem, time.Minute, zap.NewNop()),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	category := &models.Category{Name: "Books"}
	require.NoError(t, svc.CreateCategory(ctx, category))
	product := &models.Product{Name: "Go in Action", Price: 30, CategoryID: category.ID}
	require.NoError(t, svc.CreateProduct(ctx, product))

	got, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Price)
	ok, err := mem.Get(ctx, cache.ProductKey(product.ID), &models.Product{})
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := svc.SearchProducts(ctx, "action")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	byCategory, err := svc.ListByCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Len(t, byCategory, 1)

	product.Price = 35
	require.NoError(t, svc.UpdateProduct(ctx, product))

	got, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 35.0, got.Price, "product views dropped on update")

	all, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	categories, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestProductValidation(t *testing.T) {
	svc, err := NewProductService(CatalogDB, Deps{Store: repotest.NewStore(t)})
	require.NoError(t, err)
	ctx := context.Background()

	err = svc.CreateProduct(ctx, &models.Product{Name: " ", Price: 1})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	err = svc.CreateProduct(ctx, &models.Product{Name: "x", Price: -1})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	err = svc.CreateCategory(ctx, &models.Category{})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = svc.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}
