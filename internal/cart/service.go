package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

// Service encapsulates cart operations.
type Service struct {
	Store    Store
	Products ProductReader
	Engine   *pricing.Engine
}

func (s *Service) engine() *pricing.Engine {
	if s.Engine == nil {
		return pricing.New(pricing.DefaultOptions())
	}
	return s.Engine
}

// Get returns the user's cart priced at current final prices. Lines whose
// product was deleted are reported in Missing and left out of pricing.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	if s == nil || s.Store == nil || s.Products == nil {
		return View{}, errors.New("cart service not configured")
	}
	items, err := s.Store.CartItems(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	view := View{UserID: userID, Items: make([]Line, 0, len(items))}
	for _, item := range items {
		product, err := s.Products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			view.Missing = append(view.Missing, item.ProductID)
			continue
		}
		if err != nil {
			return View{}, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		view.Items = append(view.Items, Line{Product: product, Quantity: item.Quantity})
	}
	breakdown, err := s.engine().Compute(LineItems(view))
	if err != nil {
		return View{}, pricingError(err)
	}
	view.Pricing = breakdown
	return view, nil
}

// Add puts quantity units of a product in the cart, on top of any already
// there. created reports whether the product was new to the cart.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) (view View, created bool, err error) {
	if quantity <= 0 {
		return View{}, false, common.BadRequest("quantity", "Quantity must be greater than zero", nil)
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return View{}, false, err
	}
	if product.Stock <= 0 {
		return View{}, false, common.BadRequest("productId", "Product out of stock", nil)
	}
	existing, err := s.quantityOf(ctx, userID, product.ID)
	if err != nil {
		return View{}, false, err
	}
	total := existing + quantity
	if total > product.Stock {
		return View{}, false, StockError(&InsufficientStockError{
			ProductID: product.ID, Product: product.Name, Available: product.Stock, Requested: total,
		})
	}
	if err := s.Store.SetCartItem(ctx, userID, product.ID, total); err != nil {
		return View{}, false, fmt.Errorf("save cart item: %w", err)
	}
	view, err = s.Get(ctx, userID)
	return view, existing == 0, err
}

// UpdateQty sets the quantity of a product already in the cart.
func (s *Service) UpdateQty(ctx context.Context, userID, productID string, quantity int) (View, error) {
	if quantity <= 0 {
		return View{}, common.BadRequest("quantity", "Quantity must be greater than zero", nil)
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if quantity > product.Stock {
		return View{}, StockError(&InsufficientStockError{
			ProductID: product.ID, Product: product.Name, Available: product.Stock, Requested: quantity,
		})
	}
	existing, err := s.quantityOf(ctx, userID, product.ID)
	if err != nil {
		return View{}, err
	}
	if existing == 0 {
		return View{}, common.NotFound("Item not in cart", ErrItemNotFound)
	}
	if err := s.Store.SetCartItem(ctx, userID, product.ID, quantity); err != nil {
		return View{}, fmt.Errorf("save cart item: %w", err)
	}
	return s.Get(ctx, userID)
}

// Remove drops a product from the cart. Removing an absent product is a no-op.
func (s *Service) Remove(ctx context.Context, userID, productID string) (View, error) {
	if err := s.Store.RemoveCartItem(ctx, userID, strings.TrimSpace(productID)); err != nil {
		return View{}, fmt.Errorf("remove cart item: %w", err)
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.Store.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Service) product(ctx context.Context, productID string) (catalog.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return catalog.Product{}, common.BadRequest("productId", "productId is required", nil)
	}
	product, err := s.Products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Product{}, common.NotFound("Product not found", err)
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("load product: %w", err)
	}
	return product, nil
}

func (s *Service) quantityOf(ctx context.Context, userID, productID string) (int, error) {
	items, err := s.Store.CartItems(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load cart: %w", err)
	}
	for _, item := range items {
		if item.ProductID == productID {
			return item.Quantity, nil
		}
	}
	return 0, nil
}

func pricingError(err error) error {
	var verr *pricing.ValidationError
	if errors.As(err, &verr) {
		return common.BadRequest(verr.Field, verr.Error(), err)
	}
	return err
}
