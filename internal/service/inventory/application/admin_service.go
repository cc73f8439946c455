package application

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/inventory/domain"
)

const (
	DefaultProductPageSize = 100
	MaxProductPageSize     = 500
)

// AdminService 提供库存管理操作，并在库存变化后发布事件。
type AdminService struct {
	runner    database.TxRunner
	ledger    domain.Ledger
	products  domain.ProductRepository
	publisher domain.EventPublisher // 可以为 nil
	tracer    trace.Tracer

	defaultThreshold int
}

type AdminOption func(*AdminService)

// WithDefaultLowStockThreshold 设置新建商品未指定阈值时使用的低库存阈值
func WithDefaultLowStockThreshold(n int) AdminOption {
	return func(s *AdminService) { s.defaultThreshold = n }
}

func NewAdminService(runner database.TxRunner, ledger domain.Ledger, products domain.ProductRepository, publisher domain.EventPublisher, opts ...AdminOption) *AdminService {
	s := &AdminService{
		runner:    runner,
		ledger:    ledger,
		products:  products,
		publisher: publisher,
		tracer:    otel.Tracer("inventory.admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStock 把总库存设置为绝对值，低于预占量时返回 ValidationError。
func (s *AdminService) SetStock(ctx context.Context, sku string, req *SetStockRequest) (*InventoryItemResponse, error) {
	if req == nil || req.Quantity == nil {
		return nil, domain.NewValidationError("quantity is required")
	}
	return s.mutate(ctx, "admin.SetStock", sku, "set", func(dbc dbctx.Context) (*domain.InventoryItem, error) {
		return s.ledger.SetAbsolute(dbc, sku, *req.Quantity)
	})
}

// AdjustStock 按增量调整总库存。
func (s *AdminService) AdjustStock(ctx context.Context, sku string, req *AdjustStockRequest) (*InventoryItemResponse, error) {
	if req == nil || req.Delta == 0 {
		return nil, domain.NewValidationError("delta must be non-zero")
	}
	return s.mutate(ctx, "admin.AdjustStock", sku, "adjust", func(dbc dbctx.Context) (*domain.InventoryItem, error) {
		return s.ledger.Adjust(dbc, sku, req.Delta)
	})
}

func (s *AdminService) mutate(ctx context.Context, spanName, sku, reason string, fn func(dbc dbctx.Context) (*domain.InventoryItem, error)) (*InventoryItemResponse, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("sku", sku)))
	defer span.End()

	var item *domain.InventoryItem
	err := s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		item, err = fn(dbc)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", item.Quantity).Str("reason", reason).Msg("stock updated by admin")
	s.publishChange(ctx, item, reason)
	return NewInventoryItemResponse(item), nil
}

func (s *AdminService) Get(ctx context.Context, sku string) (*InventoryItemResponse, error) {
	item, err := s.ledger.Get(dbctx.Context{Ctx: ctx}, sku)
	if err != nil {
		return nil, err
	}
	return NewInventoryItemResponse(item), nil
}

func (s *AdminService) List(ctx context.Context) ([]*InventoryItemResponse, error) {
	items, err := s.ledger.List(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, err
	}
	return newInventoryItemResponses(items), nil
}

func (s *AdminService) ListLowStock(ctx context.Context) ([]*InventoryItemResponse, error) {
	items, err := s.ledger.ListLowStock(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, err
	}
	return newInventoryItemResponses(items), nil
}

// CreateProduct 在同一事务中创建商品与其库存行。
func (s *AdminService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.CreateProduct")
	defer span.End()

	if req == nil || strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, domain.NewValidationError("sku and name are required")
	}
	if req.Price < 0 {
		return nil, domain.NewValidationError("price cannot be negative")
	}
	if req.Quantity < 0 {
		return nil, domain.NewValidationError("quantity cannot be negative")
	}

	product := &domain.Product{
		ID:     uuid.NewString(),
		SKU:    strings.TrimSpace(req.SKU),
		Name:   strings.TrimSpace(req.Name),
		Price:  req.Price,
		Active: true,
	}
	threshold := req.LowStockThreshold
	if threshold <= 0 {
		threshold = s.defaultThreshold
	}
	var item *domain.InventoryItem
	err := s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.products.Create(dbc, product); err != nil {
			return err
		}
		if err := s.ledger.Create(dbc, &domain.InventoryItem{
			SKU:               product.SKU,
			ProductID:         product.ID,
			Quantity:          req.Quantity,
			LowStockThreshold: threshold,
		}); err != nil {
			return err
		}
		var err error
		item, err = s.ledger.Get(dbc, product.SKU)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("sku", product.SKU).Str("product_id", product.ID).Msg("product created")
	s.publishChange(ctx, item, "created")
	resp := NewProductResponse(product)
	resp.Inventory = NewInventoryItemResponse(item)
	return resp, nil
}

// GetProduct 返回商品目录中的一项，供购物车快照价格。
func (s *AdminService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.products.FindByID(dbctx.Context{Ctx: ctx}, productID)
}

// DescribeProduct 返回商品及其当前库存；库存行缺失时只返回商品本身
func (s *AdminService) DescribeProduct(ctx context.Context, productID string) (*ProductResponse, error) {
	dbc := dbctx.Context{Ctx: ctx}
	product, err := s.products.FindByID(dbc, productID)
	if err != nil {
		return nil, err
	}
	resp := NewProductResponse(product)
	item, err := s.ledger.Get(dbc, product.SKU)
	switch {
	case err == nil:
		resp.Inventory = NewInventoryItemResponse(item)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return resp, nil
}

// ListProducts 分页列出商品；activeOnly 为 false 时包含已下架商品，供后台使用
func (s *AdminService) ListProducts(ctx context.Context, activeOnly bool, skip, limit int) (*ProductListResponse, error) {
	if skip < 0 {
		return nil, domain.NewValidationError("skip cannot be negative")
	}
	if limit <= 0 || limit > MaxProductPageSize {
		limit = DefaultProductPageSize
	}
	products, err := s.products.List(dbctx.Context{Ctx: ctx}, activeOnly, skip, limit)
	if err != nil {
		return nil, err
	}
	out := &ProductListResponse{Products: make([]*ProductResponse, 0, len(products))}
	for i := range products {
		out.Products = append(out.Products, NewProductResponse(&products[i]))
	}
	return out, nil
}

// UpdateProduct 局部更新名称、价格与上架状态。
// 下架只影响之后的加购，已在购物车或已预占的行不受影响。
func (s *AdminService) UpdateProduct(ctx context.Context, productID string, req *UpdateProductRequest) (*ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.UpdateProduct", trace.WithAttributes(attribute.String("product_id", productID)))
	defer span.End()

	if req == nil {
		return nil, domain.NewValidationError("request body is required")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, domain.NewValidationError("name cannot be empty")
	}
	if req.Price != nil && *req.Price <= 0 {
		return nil, domain.NewValidationError("price must be positive")
	}

	var product *domain.Product
	err := s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		product, err = s.products.FindByIDForUpdate(dbc, productID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			product.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			product.Price = *req.Price
		}
		if req.Active != nil {
			product.Active = *req.Active
		}
		return s.products.Update(dbc, product)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("product_id", product.ID).
		Int64("price", product.Price).
		Bool("active", product.Active).
		Msg("product updated")
	return NewProductResponse(product), nil
}

// AlertIfLowStock 对给定 SKU 检查低库存并发布告警；发布失败只记录日志。
// 返回处于低库存的 SKU。
func (s *AdminService) AlertIfLowStock(ctx context.Context, skus []string) []string {
	var low []string
	for _, sku := range skus {
		item, err := s.ledger.Get(dbctx.Context{Ctx: ctx}, sku)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("low stock check failed")
			continue
		}
		if !item.IsLowStock() {
			continue
		}
		low = append(low, sku)
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishLowStock(ctx, domain.NewLowStockAlert(item)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("sku", sku).Msg("failed to publish low stock alert")
		}
	}
	return low
}

func (s *AdminService) publishChange(ctx context.Context, item *domain.InventoryItem, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStockChanged(ctx, domain.NewStockChanged(item, reason)); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("sku", item.SKU).Msg("failed to publish stock change")
	}
	if item.IsLowStock() {
		if err := s.publisher.PublishLowStock(ctx, domain.NewLowStockAlert(item)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("sku", item.SKU).Msg("failed to publish low stock alert")
		}
	}
}
