package port

import (
	"context"

	"storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
)

// CartStore 是购物车存储的出站端口。
type CartStore interface {
	// Get 返回购物车；不存在时返回 domain.ErrNotFound
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	// AddItem 增加商品数量，已存在的行保留首次加入时的价格快照
	AddItem(ctx context.Context, cartID, customerID string, item domain.CartItem) (*domain.Cart, error)
	// RemoveItem 减少商品数量，quantity <= 0 表示整行移除
	RemoveItem(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error)
	// MarkCheckedOut 把购物车标记为已结账并清空
	MarkCheckedOut(ctx context.Context, cartID string) error
}

// ProductCatalog 为购物车提供商品名称与价格。
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*invdomain.Product, error)
}
