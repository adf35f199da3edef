package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

// FindCart returns the user's cart with items and products, or nil when the
// user never had one.
func (s *Store) FindCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.FindCart(ctx, userID)
	if err != nil || cart != nil {
		return cart, err
	}
	cart = &models.Cart{ID: newID(), UserID: userID}
	if err := s.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

func (s *Store) GetCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrCartItemNotFound)
	}
	return &item, nil
}

// FindCartItemByProduct returns nil when the product is not in the cart.
func (s *Store) FindCartItemByProduct(ctx context.Context, cartID, productID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

func (s *Store) AddCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == "" {
		item.ID = newID()
	}
	if err := s.db.WithContext(ctx).Omit("Product").Create(item).Error; err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (s *Store) SetCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	result := s.db.WithContext(ctx).Model(&models.CartItem{}).Where("id = ?", itemID).Update("quantity", quantity)
	if result.Error != nil {
		return fmt.Errorf("failed to update cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.ErrCartItemNotFound
	}
	return nil
}

func (s *Store) RemoveCartItem(ctx context.Context, cartID, itemID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.ErrCartItemNotFound
	}
	return nil
}

// ClearCart deletes every line of the cart. The cart row itself is kept.
func (s *Store) ClearCart(ctx context.Context, cartID string) error {
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// RemoveCartItems deletes the given lines of the cart. Lines added after the
// caller read the cart are left alone.
func (s *Store) RemoveCartItems(ctx context.Context, cartID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Where("cart_id = ? AND id IN ?", cartID, itemIDs).Delete(&models.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove cart items: %w", err)
	}
	return nil
}

func (s *Store) TouchCart(ctx context.Context, cartID string) error {
	err := s.db.WithContext(ctx).Model(&models.Cart{}).Where("id = ?", cartID).
		Update("updated_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}
