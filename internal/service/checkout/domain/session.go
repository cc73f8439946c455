package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	invdomain "storefront/internal/service/inventory/domain"
)

// SessionLine 是 prepare 时对购物车行的快照，finalize 只依据快照生成订单
type SessionLine struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (l SessionLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CheckoutSession 是结账流程的状态机记录
type CheckoutSession struct {
	ID                 string
	CartID             string
	CustomerID         string
	ReservationGroupID string
	State              State
	Lines              []SessionLine
	Total              int64
	ExpiresAt          time.Time
	OrderID            string
	FailureReason      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ResolvedAt         *time.Time
}

// NewCheckoutSession 以购物车当前内容创建 INITIATED 会话
func NewCheckoutSession(cart *Cart, customerID string, now time.Time) (*CheckoutSession, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if customerID == "" {
		customerID = cart.CustomerID
	}

	s := &CheckoutSession{
		ID:         uuid.NewString(),
		CartID:     cart.ID,
		CustomerID: customerID,
		State:      StateInitiated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		line := SessionLine{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		s.Lines = append(s.Lines, line)
		s.Total += line.Subtotal()
	}
	return s, nil
}

// TransitionTo 按迁移表改变状态，进入终态时记录 ResolvedAt
func (s *CheckoutSession) TransitionTo(to State, at time.Time) error {
	if !s.State.CanTransitionTo(to) {
		return errors.Wrapf(ErrInvalidState, "checkout session %s cannot move from %s to %s", s.ID, s.State, to)
	}
	s.State = to
	s.UpdatedAt = at
	if to.Terminal() {
		resolved := at
		s.ResolvedAt = &resolved
	}
	return nil
}

// IsDue 表示可以由过期检查回收该会话：严格晚于 ExpiresAt。
// 恰好在 ExpiresAt 到达的检查会被重新排期；TTL 为 0 的会话在结账时由预占组的过期判断拦截。
func (s *CheckoutSession) IsDue(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ReservationLines 返回需要预占的 SKU 数量
func (s *CheckoutSession) ReservationLines() []invdomain.Line {
	lines := make([]invdomain.Line, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, invdomain.Line{SKU: l.SKU, Quantity: l.Quantity})
	}
	return lines
}

func (s *CheckoutSession) SKUs() []string {
	seen := make(map[string]struct{}, len(s.Lines))
	skus := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		if _, ok := seen[l.SKU]; ok {
			continue
		}
		seen[l.SKU] = struct{}{}
		skus = append(skus, l.SKU)
	}
	return skus
}
