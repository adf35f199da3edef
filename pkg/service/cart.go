package service

import (
	"context"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartView struct {
	ID        string            `json:"id"`
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     float64           `json:"total"`
}

func newCartView(cart *models.Cart) *CartView {
	view := &CartView{ID: cart.ID, Items: cart.Items}
	total := decimal.Zero
	for _, item := range cart.Items {
		view.ItemCount += item.Quantity
		total = total.Add(decimal.NewFromFloat(item.Product.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	view.Total, _ = total.Round(2).Float64()
	if view.Items == nil {
		view.Items = []models.CartItem{}
	}
	return view
}

type CartService struct {
	Deps
	logger *zap.Logger
}

func NewCartService(deps Deps) *CartService {
	deps = deps.normalize()
	return &CartService{Deps: deps, logger: deps.Logger.Named("cart")}
}

func (s *CartService) GetCart(ctx context.Context, email string) (*CartView, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.Cache, cache.CartKey(email), func(ctx context.Context) (*CartView, error) {
		cart, err := s.Store.GetOrCreateCart(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return newCartView(cart), nil
	})
}

func validQuantity(quantity int) error {
	if quantity < 1 {
		return apperr.New(apperr.KindInvalidInput, "quantity must be at least 1")
	}
	return nil
}

// AddItem puts quantity of a product in the cart, merging with an existing
// line for the same product.
func (s *CartService) AddItem(ctx context.Context, email, productID string, quantity int) (*CartView, error) {
	if err := validQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, email, func(tx *repository.Store, cart *models.Cart) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		existing, err := tx.FindCartItemByProduct(ctx, cart.ID, productID)
		if err != nil {
			return err
		}
		if existing != nil {
			return tx.SetCartItemQuantity(ctx, existing.ID, existing.Quantity+quantity)
		}
		return tx.AddCartItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity})
	})
}

func (s *CartService) UpdateItem(ctx context.Context, email, itemID string, quantity int) (*CartView, error) {
	if err := validQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, email, func(tx *repository.Store, cart *models.Cart) error {
		item, err := tx.GetCartItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		return tx.SetCartItemQuantity(ctx, item.ID, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, email, itemID string) (*CartView, error) {
	return s.mutate(ctx, email, func(tx *repository.Store, cart *models.Cart) error {
		return tx.RemoveCartItem(ctx, cart.ID, itemID)
	})
}

func (s *CartService) Clear(ctx context.Context, email string) (*CartView, error) {
	return s.mutate(ctx, email, func(tx *repository.Store, cart *models.Cart) error {
		return tx.ClearCart(ctx, cart.ID)
	})
}

func (s *CartService) mutate(ctx context.Context, email string, fn func(tx *repository.Store, cart *models.Cart) error) (*CartView, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var view *CartView
	err = s.Store.WithTx(ctx, func(tx *repository.Store) error {
		cart, err := tx.GetOrCreateCart(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := fn(tx, cart); err != nil {
			return err
		}
		if err := tx.TouchCart(ctx, cart.ID); err != nil {
			return err
		}
		fresh, err := tx.FindCart(ctx, user.ID)
		if err != nil {
			return err
		}
		view = newCartView(fresh)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Evict(ctx, cache.CartKey(email))
	return view, nil
}
