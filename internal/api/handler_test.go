package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/clock"
	"storefront/internal/querycache"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router  *gin.Engine
	handler *Handler
	mem     *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(epoch)
	mem := store.NewMemory(clk, 0, store.DefaultSeed(epoch))
	cache := querycache.New(clk, 0)
	events := broker.NewEventPublisher(broker.NopWriter{}, "test", clk)

	stores := service.NewStoreService(mem, cache, events, 2*time.Minute)
	members := service.NewMemberService(mem, cache, events, 2*time.Minute)
	orders := service.NewOrderService(mem, cache, events, 5*time.Minute, time.Minute)
	products := service.NewProductService(mem, cache, 5*time.Minute)

	manager, err := auth.NewManager(auth.DefaultIdentities(), "password", auth.NewTokenIssuer("test-secret", time.Hour, clk))
	require.NoError(t, err)

	carts := cart.NewService(cart.NewMemoryPersister(), cart.NewMemoryClaimer(clk), orders.Placer())

	h := NewHandler(manager, Services{
		Stores:    stores,
		Members:   members,
		Orders:    orders,
		Products:  products,
		Dashboard: service.NewDashboardService(stores, members, orders),
	}, carts, 10)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, handler: h, mem: mem}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestReadinessReportsFailedChecks(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	s.handler.AddReadinessCheck("database", func(context.Context) error { return nil })

	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": "connection refused"}, body["failed"])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStoreMemberIsRedirectedFromAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "john@store1.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Zero(t, s.mem.Calls(store.OpGetOrders))
}

func TestRequestsWithoutTokenAreRedirected(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/stores", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestTokenFromEarlierSessionIsRejected(t *testing.T) {
	s := newTestServer(t)
	old := s.login(t, "admin@example.com")
	s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/stores", old, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stores", token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestAdminListsPagedStores(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/stores?page=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 4, body["totalItems"])
	assert.EqualValues(t, 1, body["totalPages"])
	assert.Equal(t, false, body["empty"])
	assert.Len(t, body["items"], 4)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stores?search=nowhere", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["empty"])
	assert.Empty(t, body["items"])
}

func TestAdminOrderPagingClampsPage(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/orders?page=9", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 15, body["totalItems"])
	assert.EqualValues(t, 2, body["currentPage"])
	assert.Len(t, body["items"], 5)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, body["pages"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/orders?status=shipped", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminOrderStatusFilterIgnoresCase(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/orders?status=ALL", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 15, decode(t, w)["totalItems"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/orders?status=%20Pending%20", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 5, decode(t, w)["totalItems"])
}

func TestAdminApprovesOrder(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/admin/orders/order-7/approve", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", decode(t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/admin/orders/order-7/reject", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/orders/order-99/approve", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminBackendFailureMessage(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")
	s.mem.FailNext(store.OpDeleteStore, assert.AnError)

	w := s.do(t, http.MethodDelete, "/api/v1/admin/stores/1", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Failed to delete store")
}

func TestAdminCreateStoreValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/admin/stores", token, gin.H{"storeId": "ST009"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.mem.Calls(store.OpAddStore))

	w = s.do(t, http.MethodPost, "/api/v1/admin/stores", token, gin.H{"storeId": "ST009", "name": "Harbor Point"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Harbor Point", decode(t, w)["name"])
}

func TestAdminCreateMemberTakesStoreNameFromStore(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/admin/members", token, gin.H{
		"name": "Nina Park", "email": "nina@store2.com", "storeId": "2", "storeName": "Somewhere Else",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Mall Location", decode(t, w)["storeName"])

	w = s.do(t, http.MethodPost, "/api/v1/admin/members", token, gin.H{
		"name": "Omar Reyes", "email": "omar@store9.com", "storeId": "999",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "store 999 not found")
	assert.Equal(t, 1, s.mem.Calls(store.OpAddMember))
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 4, body["stores"])
	assert.EqualValues(t, 5, body["members"])
	assert.Len(t, body["recentOrders"], 6)
}

func TestProductNotFound(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "john@store1.com")

	w := s.do(t, http.MethodGet, "/api/v1/store/products/404", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, true, decode(t, w)["notFound"])

	w = s.do(t, http.MethodGet, "/api/v1/store/products/1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Wireless Headphones", decode(t, w)["name"])
}

func TestCartCheckout(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "john@store1.com")

	w := s.do(t, http.MethodPost, "/api/v1/store/cart/items", token, gin.H{"productId": "4", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "out of stock product")

	w = s.do(t, http.MethodPost, "/api/v1/store/cart/items", token, gin.H{"productId": "1", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["totalItems"])

	w = s.do(t, http.MethodPost, "/api/v1/store/checkout", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "2", order["memberId"])
	assert.Equal(t, "179.98", order["total"])

	w = s.do(t, http.MethodGet, "/api/v1/store/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["totalItems"])

	w = s.do(t, http.MethodPost, "/api/v1/store/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty cart")

	w = s.do(t, http.MethodGet, "/api/v1/store/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)
	assert.EqualValues(t, 4, history["totalItems"])
	var ids []interface{}
	for _, item := range history["items"].([]interface{}) {
		ids = append(ids, item.(map[string]interface{})["id"])
	}
	assert.Contains(t, ids, order["id"])
}

func TestAdminIsRedirectedFromStoreRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/store/cart", token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestUpdatePasswordValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "sarah@store2.com")

	w := s.do(t, http.MethodPut, "/api/v1/profile/password", token, gin.H{"newPassword": "abcdef", "confirmPassword": "abcdeg"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/profile/password", token, gin.H{"newPassword": "abc", "confirmPassword": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/profile/password", token, gin.H{"newPassword": "abcdef", "confirmPassword": "abcdef"})
	assert.Equal(t, http.StatusOK, w.Code)
}
