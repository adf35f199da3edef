package service

import (
	"context"
	"strings"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const defaultPageSize = 20

type OrderService struct {
	Deps
	logger *zap.Logger
}

func NewOrderService(deps Deps) *OrderService {
	deps = deps.normalize()
	return &OrderService{Deps: deps, logger: deps.Logger.Named("order")}
}

// CreateOrder turns the user's cart into a pending order at current product
// prices. Order, items and the removal of the ordered cart lines commit
// together.
func (s *OrderService) CreateOrder(ctx context.Context, email, address string) (*models.Order, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "delivery address is required")
	}

	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.Store.WithTx(ctx, func(tx *repository.Store) error {
		cart, err := tx.FindCart(ctx, user.ID)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return apperr.ErrEmptyCart
		}

		items := make([]models.OrderItem, 0, len(cart.Items))
		lineIDs := make([]string, 0, len(cart.Items))
		for _, line := range cart.Items {
			lineIDs = append(lineIDs, line.ID)
			// cart rows may hold a stale product snapshot, re-read the price
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				Price:       product.Price,
			})
		}

		total, _ := models.SumItems(items).Float64()
		order = &models.Order{
			UserID:          user.ID,
			Status:          models.OrderStatusPending,
			TotalAmount:     total,
			DeliveryAddress: address,
			OrderDate:       s.now(),
			Items:           items,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.RemoveCartItems(ctx, cart.ID, lineIDs); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.Cache.EvictPrefix(ctx, cache.OrdersKey(email))
	s.Cache.EvictPrefix(ctx, cache.OrderPrefix(email))
	s.Cache.Evict(ctx, cache.CartKey(email))

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", user.ID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.Int("item_count", len(order.Items)))

	s.record(ctx, audit.ActionOrderCreated, order.ID, email, map[string]interface{}{
		"user_id":      user.ID,
		"total_amount": order.TotalAmount,
	})
	s.publish(ctx, events.Event{
		Type:     events.OrderCreated,
		EntityID: order.ID,
		Data:     map[string]interface{}{"user_id": user.ID, "total_amount": order.TotalAmount},
	})
	return order, nil
}

// GetOrder returns one of the user's orders. Orders of other users are
// reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, email, orderID string) (*models.Order, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.Cache, cache.OrderKey(email, orderID), func(ctx context.Context) (*models.Order, error) {
		return s.Store.GetUserOrder(ctx, user.ID, orderID)
	})
}

type OrderQuery struct {
	Page     int
	PageSize int
	Status   models.OrderStatus
}

type OrderPage struct {
	Orders   []models.Order `json:"orders"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func (s *OrderService) ListOrders(ctx context.Context, email string, q OrderQuery) (*OrderPage, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown order status")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = defaultPageSize
	}

	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	key := cache.OrdersPageKey(email, q.Page, q.PageSize, string(q.Status))
	return cache.Load(ctx, s.Cache, key, func(ctx context.Context) (*OrderPage, error) {
		orders, total, err := s.Store.ListOrders(ctx, repository.OrderFilter{
			UserID:   user.ID,
			Status:   q.Status,
			Page:     q.Page,
			PageSize: q.PageSize,
		})
		if err != nil {
			return nil, err
		}
		return &OrderPage{Orders: orders, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
	})
}

// UpdateOrderStatus is the administrative status change. Every cached order
// view is dropped since the owner is not known up front.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, by string) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown order status")
	}
	if err := s.Store.SetOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	s.Cache.EvictPrefix(ctx, cache.AllOrdersPrefix)

	s.logger.Info("Order status updated", zap.String("order_id", orderID), zap.String("status", string(status)))
	s.record(ctx, audit.ActionOrderStatusChanged, orderID, by, map[string]interface{}{"status": string(status)})

	return s.Store.GetOrder(ctx, orderID)
}
