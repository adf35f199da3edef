package repository

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// CreateOrder inserts the order together with its items.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = newID()
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = newID()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items", preloadItems).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrOrderNotFound)
	}
	return &order, nil
}

// GetUserOrder returns the order only when it belongs to userID; other users'
// orders are reported as not found.
func (s *Store) GetUserOrder(ctx context.Context, userID, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items", preloadItems).
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrOrderNotFound)
	}
	return &order, nil
}

type OrderFilter struct {
	UserID   string
	Status   models.OrderStatus
	Page     int
	PageSize int
}

// ListOrders returns one page of orders, newest first, and the total count
// matching the filter. Page is 1-based.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	var orders []models.Order
	err := query.Preload("Items", preloadItems).
		Order("order_date DESC, id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// TransitionOrderStatus moves the order from one status to another only if
// it is still in from. It reports whether the row changed.
func (s *Store) TransitionOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	result := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.ErrOrderNotFound
	}
	return nil
}
