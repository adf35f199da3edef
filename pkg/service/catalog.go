package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
)

// ProductService is the catalog read/write surface. The implementation is
// chosen by catalog.source at startup.
type ProductService interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	SearchProducts(ctx context.Context, query string) ([]models.Product, error)
	ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
}

// Catalog sources.
const (
	CatalogDB     = "db"
	CatalogCached = "cached"
)

func NewProductService(source string, deps Deps) (ProductService, error) {
	deps = deps.normalize()
	db := &DBProductService{Deps: deps}
	switch source {
	case CatalogDB, "":
		return db, nil
	case CatalogCached:
		return &CachedProductService{next: db, cache: deps.Cache, logger: deps.Logger.Named("catalog")}, nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", source)
	}
}

func validateProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.New(apperr.KindInvalidInput, "product name is required")
	}
	if p.Price < 0 {
		return apperr.New(apperr.KindInvalidInput, "product price must not be negative")
	}
	return nil
}

// DBProductService reads the catalog straight from the database.
type DBProductService struct {
	Deps
}

func (s *DBProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.Store.GetProduct(ctx, id)
}

func (s *DBProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.Store.ListProducts(ctx)
}

func (s *DBProductService) SearchProducts(ctx context.Context, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Store.ListProducts(ctx)
	}
	return s.Store.SearchProducts(ctx, query)
}

func (s *DBProductService) ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	return s.Store.ListProductsByCategory(ctx, categoryID)
}

func (s *DBProductService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.Store.ListCategories(ctx)
}

func (s *DBProductService) CreateCategory(ctx context.Context, category *models.Category) error {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return apperr.New(apperr.KindInvalidInput, "category name is required")
	}
	return s.Store.CreateCategory(ctx, category)
}

func (s *DBProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.Store.CreateProduct(ctx, product)
}

func (s *DBProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.Store.UpdateProduct(ctx, product)
}

// CachedProductService serves reads cache-aside and drops every product view
// on writes.
type CachedProductService struct {
	next   ProductService
	cache  *cache.Loader
	logger *zap.Logger
}

func (s *CachedProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return cache.Load(ctx, s.cache, cache.ProductKey(id), func(ctx context.Context) (*models.Product, error) {
		return s.next.GetProduct(ctx, id)
	})
}

func (s *CachedProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return cache.Load(ctx, s.cache, cache.ProductsKey, s.next.ListProducts)
}

func (s *CachedProductService) SearchProducts(ctx context.Context, query string) ([]models.Product, error) {
	key := cache.ProductQueryKey("search", strings.ToLower(strings.TrimSpace(query)))
	return cache.Load(ctx, s.cache, key, func(ctx context.Context) ([]models.Product, error) {
		return s.next.SearchProducts(ctx, query)
	})
}

func (s *CachedProductService) ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	return cache.Load(ctx, s.cache, cache.ProductQueryKey("category", categoryID), func(ctx context.Context) ([]models.Product, error) {
		return s.next.ListByCategory(ctx, categoryID)
	})
}

func (s *CachedProductService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return cache.Load(ctx, s.cache, cache.CategoriesKey, s.next.ListCategories)
}

func (s *CachedProductService) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := s.next.CreateCategory(ctx, category); err != nil {
		return err
	}
	s.cache.Evict(ctx, cache.CategoriesKey)
	return nil
}

func (s *CachedProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.next.CreateProduct(ctx, product); err != nil {
		return err
	}
	s.cache.EvictPrefix(ctx, cache.AllProductsPrefix)
	return nil
}

func (s *CachedProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := s.next.UpdateProduct(ctx, product); err != nil {
		return err
	}
	s.cache.EvictPrefix(ctx, cache.AllProductsPrefix)
	s.logger.Info("Product updated, catalog cache dropped", zap.String("product_id", product.ID))
	return nil
}
