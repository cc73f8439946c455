package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/application"
	"storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
)

// CheckoutHandler 封装了结账与购物车的 HTTP 处理器
type CheckoutHandler struct {
	checkout *application.CheckoutService
	carts    *application.CartService
}

func NewCheckoutHandler(checkout *application.CheckoutService, carts *application.CartService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, carts: carts}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout/prepare", h.handlePrepare)
	mux.HandleFunc("POST /checkout/finalize", h.handleFinalize)
	mux.HandleFunc("POST /checkout/cancel", h.handleCancel)
	mux.HandleFunc("GET /checkout/sessions/{id}", h.handleGetSession)

	mux.HandleFunc("GET /carts/{id}", h.handleGetCart)
	mux.HandleFunc("POST /carts/{id}/items", h.handleAddCartItem)
	mux.HandleFunc("DELETE /carts/{id}/items/{product_id}", h.handleRemoveCartItem)
}

func (h *CheckoutHandler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req application.PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.checkout.Prepare(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req application.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.checkout.Finalize(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req application.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.checkout.Cancel(r.Context(), &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.CancelResponse{OK: true})
}

func (h *CheckoutHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.checkout.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	resp, err := h.carts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req application.AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.carts.AddItem(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	quantity := 0
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "Invalid quantity", http.StatusBadRequest)
			return
		}
		quantity = n
	}
	resp, err := h.carts.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("product_id"), quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError 根据错误类型返回不同的 HTTP 状态码；ReservationExpired 必须先于 InvalidState 判断
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := map[string]interface{}{"error": err.Error()}
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientStock):
		statusCode = http.StatusConflict
		var stockErr *invdomain.InsufficientStockError
		if errors.As(err, &stockErr) {
			body["sku"] = stockErr.SKU
			body["requested"] = stockErr.Requested
			body["available"] = stockErr.Available
		}
	case errors.Is(err, domain.ErrPaymentFailed):
		statusCode = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrReservationExpired):
		statusCode = http.StatusGone
	case errors.Is(err, domain.ErrInvalidState):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrPaymentUnavailable):
		statusCode = http.StatusBadGateway
	default:
		statusCode = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("checkout request failed")
	}
	writeJSON(w, statusCode, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
