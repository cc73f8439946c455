package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/testutil"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.StockChanged
	alerts  []domain.LowStockAlert
}

func (p *recordingPublisher) PublishStockChanged(_ context.Context, e domain.StockChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, e)
	return nil
}

func (p *recordingPublisher) PublishLowStock(_ context.Context, a domain.LowStockAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *recordingPublisher, *infrastructure.GormLedger) {
	t.Helper()
	db := testutil.DB(t, &infrastructure.InventoryItemModel{}, &infrastructure.ProductModel{}, &infrastructure.StockReservationModel{})
	ledger := infrastructure.NewGormLedger(db)
	pub := &recordingPublisher{}
	svc := application.NewAdminService(database.NewGormTxRunner(db, 1, nil), ledger, infrastructure.NewGormProductRepository(db), pub)

	mux := http.NewServeMux()
	NewAdminHandler(svc).RegisterRoutes(mux)
	NewCatalogHandler(svc).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, pub, ledger
}

func dbcFor() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestCreateProductAndSetStock(t *testing.T) {
	srv, pub, _ := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/admin/products",
		`{"sku":"SKU-1","name":"Mug","price":1299,"quantity":20}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "SKU-1", body["sku"])
	inv := body["inventory"].(map[string]interface{})
	assert.EqualValues(t, 20, inv["available_quantity"])

	resp, body = do(t, http.MethodPut, srv.URL+"/admin/inventory/SKU-1", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, body["quantity"])
	assert.Equal(t, true, body["is_low_stock"])

	require.Len(t, pub.changes, 2)
	assert.Equal(t, "set", pub.changes[1].Reason)
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, "SKU-1", pub.alerts[0].SKU)
}

func TestSetStockBelowReservedIsRejected(t *testing.T) {
	srv, _, ledger := newServer(t)
	resp, _ := do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-1","name":"Mug","price":100,"quantity":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, ledger.TryReserve(dbcFor(), "SKU-1", 3))

	resp, body := do(t, http.MethodPut, srv.URL+"/admin/inventory/SKU-1", `{"quantity":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "below reserved")

	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/inventory/SKU-1", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "quantity is required")
}

func TestAdjustAndListing(t *testing.T) {
	srv, _, _ := newServer(t)
	do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-B","name":"B","price":100,"quantity":50}`)
	do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-A","name":"A","price":100,"quantity":11}`)

	resp, body := do(t, http.MethodPost, srv.URL+"/admin/inventory/SKU-A/adjust", `{"delta":-2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 9, body["quantity"])

	httpResp, err := http.Get(srv.URL + "/admin/inventory/low-stock")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	var low []application.InventoryItemResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&low))
	require.Len(t, low, 1)
	assert.Equal(t, "SKU-A", low[0].SKU)

	listResp, err := http.Get(srv.URL + "/admin/inventory")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var all []application.InventoryItemResponse
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&all))
	require.Len(t, all, 2)
	assert.Equal(t, "SKU-A", all[0].SKU)
}

func TestUnknownSKUAndDuplicateProduct(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/admin/inventory/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-1","name":"Mug","price":100,"quantity":1}`)
	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-1","name":"Mug","price":100,"quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProductCatalogAndUpdate(t *testing.T) {
	srv, _, _ := newServer(t)
	_, mug := do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-B","name":"Mug","price":1299,"quantity":20}`)
	_, cup := do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-A","name":"Cup","price":500,"quantity":3}`)
	mugID := mug["id"].(string)
	cupID := cup["id"].(string)

	resp, body := do(t, http.MethodPut, srv.URL+"/admin/products/"+mugID, `{"name":" Big Mug ","price":1499}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Big Mug", body["name"])
	assert.EqualValues(t, 1499, body["price"])
	assert.Equal(t, true, body["active"], "omitted fields keep their value")

	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/products/"+cupID, `{"active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	public := body["products"].([]interface{})
	require.Len(t, public, 1)
	assert.Equal(t, mugID, public[0].(map[string]interface{})["id"])

	resp, body = do(t, http.MethodGet, srv.URL+"/admin/products?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := body["products"].([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, "SKU-A", page[0].(map[string]interface{})["sku"], "admin listing includes inactive products")

	resp, body = do(t, http.MethodGet, srv.URL+"/admin/products?skip=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["products"].([]interface{}), 1)

	resp, body = do(t, http.MethodGet, srv.URL+"/products/"+mugID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv := body["inventory"].(map[string]interface{})
	assert.EqualValues(t, 20, inv["available_quantity"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/products/"+cupID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "inactive products are hidden from the catalog")
	resp, body = do(t, http.MethodGet, srv.URL+"/admin/products/"+cupID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"])
}

func TestProductUpdateErrors(t *testing.T) {
	srv, _, _ := newServer(t)
	_, mug := do(t, http.MethodPost, srv.URL+"/admin/products", `{"sku":"SKU-1","name":"Mug","price":1299,"quantity":1}`)
	mugID := mug["id"].(string)

	resp, _ := do(t, http.MethodPut, srv.URL+"/admin/products/missing", `{"price":10}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/admin/products/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/products/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/products/"+mugID, `{"price":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/products/"+mugID, `{"name":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/products/"+mugID, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/products?limit=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/products?skip=-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
