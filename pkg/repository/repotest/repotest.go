// Package repotest provides an in-memory SQLite store for tests.
package repotest

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewStore returns a migrated store backed by a private in-memory database.
func NewStore(t *testing.T) *repository.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),

		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return repository.NewStore(db)
}

// SeedUser inserts a user with the given email.
func SeedUser(t *testing.T, store *repository.Store, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "Test User", Email: email, Password: "x", Role: models.RoleUser}
	require.NoError(t, store.DB().Create(withID(user)).Error)
	return user
}

// SeedProduct inserts a product with the given price.
func SeedProduct(t *testing.T, store *repository.Store, name string, price float64) *models.Product {
	t.Helper()
	product := &models.Product{ID: uuid.NewString(), Name: name, Price: price}
	require.NoError(t, store.DB().Omit("Category").Create(product).Error)
	return product
}

// SeedCart creates a cart for user holding the given quantity of each product.
func SeedCart(t *testing.T, store *repository.Store, user *models.User, lines map[*models.Product]int) *models.Cart {
	t.Helper()
	cart := &models.Cart{ID: uuid.NewString(), UserID: user.ID}
	require.NoError(t, store.DB().Create(cart).Error)
	for product, qty := range lines {
		item := &models.CartItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: product.ID, Quantity: qty}
		require.NoError(t, store.DB().Omit("Product").Create(item).Error)
	}
	return cart
}

// SeedOrder inserts a pending order owned by user with the given total.
func SeedOrder(t *testing.T, store *repository.Store, user *models.User, total float64) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Status:          models.OrderStatusPending,
		TotalAmount:     total,
		DeliveryAddress: "1 Main St",
		OrderDate:       time.Now().UTC(),
	}
	require.NoError(t, store.DB().Create(order).Error)
	return order
}

// SeedPayment inserts a payment with explicit timestamps.
func SeedPayment(t *testing.T, store *repository.Store, p models.Payment) *models.Payment {
	t.Helper()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	require.NoError(t, store.DB().Create(&p).Error)
	return &p
}

func withID(u *models.User) *models.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return u
}
