package application

import (
	"time"

	"storefront/internal/service/checkout/domain"
)

// PrepareRequest 对应 POST /checkout/prepare
type PrepareRequest struct {
	CartID     string `json:"cart_id"`
	CustomerID string `json:"customer_id"`
}

type PrepareResponse struct {
	CheckoutSessionID string    `json:"checkout_session_id"`
	Total             int64     `json:"total"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// FinalizeRequest 对应 POST /checkout/finalize
type FinalizeRequest struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	PaymentToken      string `json:"payment_token"`
}

type FinalizeResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Total       int64  `json:"total"`
}

// CancelRequest 对应 POST /checkout/cancel
type CancelRequest struct {
	CheckoutSessionID string `json:"checkout_session_id"`
}

type CancelResponse struct {
	OK bool `json:"ok"`
}

type SessionLineResponse struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

type SessionResponse struct {
	ID                 string                `json:"id"`
	CartID             string                `json:"cart_id"`
	CustomerID         string                `json:"customer_id"`
	ReservationGroupID string                `json:"reservation_group_id"`
	State              string                `json:"state"`
	Lines              []SessionLineResponse `json:"lines"`
	Total              int64                 `json:"total"`
	ExpiresAt          time.Time             `json:"expires_at"`
	OrderID            string                `json:"order_id,omitempty"`
	FailureReason      string                `json:"failure_reason,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	ResolvedAt         *time.Time            `json:"resolved_at,omitempty"`
}

func NewSessionResponse(s *domain.CheckoutSession) *SessionResponse {
	resp := &SessionResponse{
		ID:                 s.ID,
		CartID:             s.CartID,
		CustomerID:         s.CustomerID,
		ReservationGroupID: s.ReservationGroupID,
		State:              string(s.State),
		Lines:              make([]SessionLineResponse, 0, len(s.Lines)),
		Total:              s.Total,
		ExpiresAt:          s.ExpiresAt,
		OrderID:            s.OrderID,
		FailureReason:      s.FailureReason,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		ResolvedAt:         s.ResolvedAt,
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, SessionLineResponse{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return resp
}

// AddCartItemRequest 对应 POST /carts/{id}/items
type AddCartItemRequest struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	CustomerID string `json:"customer_id"`
}

type CartResponse struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	Items      []domain.CartItem `json:"items"`
	Total      int64             `json:"total"`
}

func NewCartResponse(c *domain.Cart) *CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return &CartResponse{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		Status:     string(c.Status),
		Items:      items,
		Total:      c.Total(),
	}
}
