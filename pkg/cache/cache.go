package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores JSON-serializable values by key.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}

const (
	// AllOrdersPrefix matches both order lists and single-order views.
	AllOrdersPrefix   = "order"
	AllPaymentsPrefix = "payment:"
	// AllProductsPrefix matches products and product listings.
	AllProductsPrefix = "product"
	ProductsKey       = "products:all"
	CategoriesKey     = "categories:all"
)

// OrdersKey is the prefix shared by every cached order listing of a user.
func OrdersKey(email string) string {
	return fmt.Sprintf("orders:%s", email)
}

func OrdersPageKey(email string, page, size int, status string) string {
	return fmt.Sprintf("orders:%s:%d:%d:%s", email, page, size, status)
}

func OrderKey(email, orderID string) string {
	return fmt.Sprintf("order:%s:%s", email, orderID)
}

// OrderPrefix matches every single-order view of one user.
func OrderPrefix(email string) string {
	return fmt.Sprintf("order:%s:", email)
}

func PaymentKey(email, paymentID string) string {
	return fmt.Sprintf("payment:%s:%s", email, paymentID)
}

func CartKey(email string) string {
	return fmt.Sprintf("cart:%s", email)
}

func ProductKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// ProductQueryKey names a derived listing such as a search or a category.
func ProductQueryKey(kind, value string) string {
	return fmt.Sprintf("products:%s:%s", kind, value)
}
