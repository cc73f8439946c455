package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
)

// AdminHandler 封装了库存管理的 HTTP 处理器
type AdminHandler struct {
	service *application.AdminService
}

func NewAdminHandler(service *application.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/inventory", h.handleList)
	mux.HandleFunc("GET /admin/inventory/low-stock", h.handleListLowStock)
	mux.HandleFunc("GET /admin/inventory/{sku}", h.handleGet)
	mux.HandleFunc("PUT /admin/inventory/{sku}", h.handleSetStock)
	mux.HandleFunc("POST /admin/inventory/{sku}/adjust", h.handleAdjustStock)
	mux.HandleFunc("GET /admin/products", h.handleListProducts)
	mux.HandleFunc("POST /admin/products", h.handleCreateProduct)
	mux.HandleFunc("GET /admin/products/{id}", h.handleGetProduct)
	mux.HandleFunc("PUT /admin/products/{id}", h.handleUpdateProduct)
}

// CatalogHandler 是面向顾客的只读商品目录，仅展示上架商品
type CatalogHandler struct {
	service *application.AdminService
}

func NewCatalogHandler(service *application.AdminService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /products", h.handleList)
	mux.HandleFunc("GET /products/{id}", h.handleGet)
}

func (h *CatalogHandler) handleList(w http.ResponseWriter, r *http.Request) {
	listProducts(w, r, h.service, true)
}

func (h *CatalogHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.DescribeProduct(r.Context(), r.PathValue("id"))
	if err == nil && !product.Active {
		err = errors.Wrapf(domain.ErrNotFound, "product %s", product.ID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func listProducts(w http.ResponseWriter, r *http.Request, service *application.AdminService, activeOnly bool) {
	skip, err := intQuery(r, "skip")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := service.ListProducts(r.Context(), activeOnly, skip, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("%s must be an integer", name)
	}
	return n, nil
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) handleListLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListLowStock(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req application.SetStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	item, err := h.service.SetStock(r.Context(), r.PathValue("sku"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req application.AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	item, err := h.service.AdjustStock(r.Context(), r.PathValue("sku"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req application.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *AdminHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	listProducts(w, r, h.service, false)
}

func (h *AdminHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.DescribeProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *AdminHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState):
		statusCode = http.StatusConflict
	default:
		statusCode = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Msg("admin request failed")
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
