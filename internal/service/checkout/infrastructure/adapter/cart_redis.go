package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/checkout/domain"
)

// CartRedisAdapter 是 port.CartStore 的 Redis 实现。
// 每个购物车两个 key，使用相同的 hash tag 以便在集群模式下落在同一个 slot：
//
//	cart:{id}:items  hash, product_id -> CartItem JSON
//	cart:{id}:meta   hash, customer_id / status / updated_at
type CartRedisAdapter struct {
	client goredis.UniversalClient
	now    func() time.Time

	addScript      *goredis.Script
	removeScript   *goredis.Script
	checkoutScript *goredis.Script
}

func NewCartRedisAdapter(client goredis.UniversalClient) *CartRedisAdapter {
	return &CartRedisAdapter{
		client:         client,
		now:            time.Now,
		addScript:      redis.LoadScriptFromContent(addItemScript),
		removeScript:   redis.LoadScriptFromContent(removeItemScript),
		checkoutScript: redis.LoadScriptFromContent(checkoutScript),
	}
}

func itemsKey(cartID string) string { return fmt.Sprintf("cart:{%s}:items", cartID) }
func metaKey(cartID string) string  { return fmt.Sprintf("cart:{%s}:meta", cartID) }

func (a *CartRedisAdapter) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	pipe := a.client.Pipeline()
	itemsCmd := pipe.HGetAll(ctx, itemsKey(cartID))
	metaCmd := pipe.HGetAll(ctx, metaKey(cartID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "load cart %s", cartID)
	}

	rawItems, meta := itemsCmd.Val(), metaCmd.Val()
	if len(rawItems) == 0 && len(meta) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "cart %s", cartID)
	}

	cart := &domain.Cart{
		ID:         cartID,
		CustomerID: meta["customer_id"],
		Status:     domain.CartStatus(meta["status"]),
	}
	if cart.Status == "" {
		cart.Status = domain.CartActive
	}
	if ms, err := strconv.ParseInt(meta["updated_at"], 10, 64); err == nil {
		cart.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	for productID, raw := range rawItems {
		var item domain.CartItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, errors.Wrapf(err, "decode cart %s item %s", cartID, productID)
		}
		cart.Items = append(cart.Items, item)
	}
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ProductID < cart.Items[j].ProductID })
	return cart, nil
}

func (a *CartRedisAdapter) AddItem(ctx context.Context, cartID, customerID string, item domain.CartItem) (*domain.Cart, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, errors.Wrap(err, "encode cart item")
	}
	res, err := redis.RunScript(ctx, a.client, a.addScript,
		[]string{itemsKey(cartID), metaKey(cartID)},
		item.ProductID, string(payload), customerID, a.now().UnixMilli())
	if err != nil {
		return nil, errors.Wrapf(err, "add item to cart %s", cartID)
	}
	if code, ok := res.(int64); ok && code == -1 {
		return nil, domain.NewValidationError("cart %s belongs to another customer", cartID)
	}
	return a.Get(ctx, cartID)
}

func (a *CartRedisAdapter) RemoveItem(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	res, err := redis.RunScript(ctx, a.client, a.removeScript,
		[]string{itemsKey(cartID), metaKey(cartID)},
		productID, quantity, a.now().UnixMilli())
	if err != nil {
		return nil, errors.Wrapf(err, "remove item from cart %s", cartID)
	}
	if code, ok := res.(int64); ok && code == -1 {
		return nil, errors.Wrapf(domain.ErrNotFound, "product %s in cart %s", productID, cartID)
	}
	return a.Get(ctx, cartID)
}

func (a *CartRedisAdapter) MarkCheckedOut(ctx context.Context, cartID string) error {
	_, err := redis.RunScript(ctx, a.client, a.checkoutScript,
		[]string{itemsKey(cartID), metaKey(cartID)},
		a.now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "check out cart %s", cartID)
	}
	return nil
}

var addItemScript = `
-- KEYS[1]: 购物车商品 hash，KEYS[2]: 购物车元数据 hash
-- ARGV[1]: product_id，ARGV[2]: CartItem JSON，ARGV[3]: customer_id，ARGV[4]: 当前时间（毫秒）

-- 已结账的购物车重新开始
if redis.call('hget', KEYS[2], 'status') == 'checked_out' then
    redis.call('del', KEYS[1])
    redis.call('hset', KEYS[2], 'status', 'active')
end

local owner = redis.call('hget', KEYS[2], 'customer_id')
if owner and ARGV[3] ~= '' and owner ~= ARGV[3] then
    return -1
end

local item = cjson.decode(ARGV[2])
local existing = redis.call('hget', KEYS[1], ARGV[1])
if existing then
    -- 保留第一次加入时的价格快照，只累加数量
    local current = cjson.decode(existing)
    current.quantity = current.quantity + item.quantity
    item = current
end
redis.call('hset', KEYS[1], ARGV[1], cjson.encode(item))

if ARGV[3] ~= '' then
    redis.call('hsetnx', KEYS[2], 'customer_id', ARGV[3])
end
redis.call('hsetnx', KEYS[2], 'status', 'active')
redis.call('hset', KEYS[2], 'updated_at', ARGV[4])
return item.quantity
`

var removeItemScript = `
-- KEYS[1]: 购物车商品 hash，KEYS[2]: 购物车元数据 hash
-- ARGV[1]: product_id，ARGV[2]: 减少的数量（<= 0 表示整行移除），ARGV[3]: 当前时间（毫秒）
local existing = redis.call('hget', KEYS[1], ARGV[1])
if not existing then
    return -1
end

local n = tonumber(ARGV[2])
local item = cjson.decode(existing)
local remaining = 0
if n <= 0 or item.quantity <= n then
    redis.call('hdel', KEYS[1], ARGV[1])
else
    item.quantity = item.quantity - n
    remaining = item.quantity
    redis.call('hset', KEYS[1], ARGV[1], cjson.encode(item))
end
redis.call('hset', KEYS[2], 'updated_at', ARGV[3])
return remaining
`

var checkoutScript = `
-- KEYS[1]: 购物车商品 hash，KEYS[2]: 购物车元数据 hash
-- ARGV[1]: 当前时间（毫秒）
redis.call('del', KEYS[1])
redis.call('hset', KEYS[2], 'status', 'checked_out', 'updated_at', ARGV[1])
return 1
`
