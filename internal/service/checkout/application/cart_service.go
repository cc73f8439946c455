package application

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// CartService 维护购物车；加入商品时从商品目录快照名称与价格。
type CartService struct {
	carts   port.CartStore
	catalog port.ProductCatalog
	tracer  trace.Tracer
}

func NewCartService(carts port.CartStore, catalog port.ProductCatalog) *CartService {
	return &CartService{carts: carts, catalog: catalog, tracer: otel.Tracer("checkout.cart")}
}

// Get 返回购物车，不存在的购物车视为空的 active 购物车。
func (s *CartService) Get(ctx context.Context, cartID string) (*CartResponse, error) {
	cart, err := s.carts.Get(ctx, cartID)
	if errors.Is(err, domain.ErrNotFound) {
		return NewCartResponse(&domain.Cart{ID: cartID, Status: domain.CartActive}), nil
	}
	if err != nil {
		return nil, err
	}
	return NewCartResponse(cart), nil
}

func (s *CartService) AddItem(ctx context.Context, cartID string, req *AddCartItemRequest) (*CartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer span.End()

	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, domain.NewValidationError("product_id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity must be positive")
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !product.Active {
		return nil, domain.NewValidationError("product %s is not available", product.ID)
	}

	cart, err := s.carts.AddItem(ctx, cartID, req.CustomerID, domain.CartItem{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Quantity:  req.Quantity,
		UnitPrice: product.Price,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("cart", cartID).Str("sku", product.SKU).Int("quantity", req.Quantity).Msg("item added to cart")
	return NewCartResponse(cart), nil
}

// RemoveItem 减少数量，quantity <= 0 时整行移除。
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string, quantity int) (*CartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem", trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer span.End()

	cart, err := s.carts.RemoveItem(ctx, cartID, productID, quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return NewCartResponse(cart), nil
}
