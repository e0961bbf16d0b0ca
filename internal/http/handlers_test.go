package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpartybox/internal/auth"
	"fastpartybox/internal/cache"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/localstore"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/ratelimit"
	"fastpartybox/internal/repository"
	"fastpartybox/internal/service"
)

const testUser = "user-1"

type harness struct {
	srv     *Server
	store   *repository.MemoryStore
	monitor *offline.Monitor
}

func (h *harness) goOffline() {
	h.store.SetUnavailable(errors.New("network unreachable"))
	h.monitor.SetOnline(false)
}

func (h *harness) goOnline() {
	h.store.SetUnavailable(nil)
	h.monitor.SetOnline(true)
}

func newHarness(t *testing.T, limiter *ratelimit.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	kv := localstore.NewMemoryKV(0)
	rec := &events.Recorder{}
	monitor := offline.NewMonitor(store, 0, log)
	coord := offline.NewCoordinator(store, kv, monitor, rec, log)
	catalog := offline.NewCatalogSnapshot(kv)
	carts := offline.NewCartStore(kv, log)
	subs := service.NewSubscriptionService(store, store, cache.NewTTL[domain.Tier](time.Minute), log)

	srv := NewServer(Deps{
		Products:      service.NewProductService(store, subs, catalog, log),
		Orders:        service.NewOrderService(store, coord, monitor, carts, catalog, rec, log),
		Carts:         service.NewCartService(carts, store, catalog, monitor, log),
		Customers:     service.NewCustomerService(store, coord, rec, log),
		Dashboard:     service.NewDashboardService(store, service.DashboardConfig{}),
		Subscriptions: subs,
		Coordinator:   coord,
		Monitor:       monitor,
		Session:       auth.NewSession(),
		Limiter:       limiter,
		Log:           log,
	})
	return &harness{srv: srv, store: store, monitor: monitor}
}

func setupServer(t *testing.T) *Server {
	t.Helper()
	return newHarness(t, nil).srv
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, s, testUser, method, path, body)
}

func doAs(t *testing.T, s *Server, uid, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(auth.HeaderUserID, uid)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createProduct(t *testing.T, s *Server, name string, stock int64) domain.Product {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/products", map[string]any{
		"name": name, "purchase_price": 5, "mrp": 12, "retail_price": 10, "wholesale_price": 8, "stock_qty": stock,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product %v: %s", w.Code, w.Body.String())
	}
	return decode[domain.Product](t, w)
}

func productStock(t *testing.T, s *Server, id string) int64 {
	t.Helper()
	w := doJSON(t, s, http.MethodGet, "/api/v1/products/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get product %v", w.Code)
	}
	return decode[domain.Product](t, w).StockQty
}

func TestMissingUserHeader(t *testing.T) {
	s := setupServer(t)
	w := doAs(t, s, "", http.MethodGet, "/api/v1/products", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code %v", w.Code)
	}
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("request id header not set")
	}
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	w := doAs(t, s, "", http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code %v", w.Code)
	}
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Balloon Pack", 5)
	base := "/api/v1/products/" + p.ID

	w := doJSON(t, s, http.MethodGet, base, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code %v", w.Code)
	}
	// update
	w = doJSON(t, s, http.MethodPut, base, map[string]any{
		"name": "Balloon Pack XL", "purchase_price": 5, "mrp": 15, "retail_price": 12, "wholesale_price": 9, "stock_qty": 7,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v: %s", w.Code, w.Body.String())
	}
	if got := decode[domain.Product](t, w); got.StockQty != 7 || got.LastStockChange == nil {
		t.Fatalf("update result %+v", got)
	}
	// invalid update
	w = doJSON(t, s, http.MethodPut, base, map[string]any{"name": "", "stock_qty": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid update code %v", w.Code)
	}
	// list
	w = doJSON(t, s, http.MethodGet, "/api/v1/products?q=balloon", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list code %v", w.Code)
	}
	if got := decode[[]domain.Product](t, w); len(got) != 1 {
		t.Fatalf("list len %d", len(got))
	}
	// stock
	w = doJSON(t, s, http.MethodPost, base+"/stock", map[string]any{"stock_qty": 20})
	if w.Code != http.StatusOK {
		t.Fatalf("stock code %v", w.Code)
	}
	// archive hides it from the default listing
	w = doJSON(t, s, http.MethodPost, base+"/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/products", nil)
	if got := decode[[]domain.Product](t, w); len(got) != 0 {
		t.Fatalf("archived product listed")
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/products?include_archived=true", nil)
	if got := decode[[]domain.Product](t, w); len(got) != 1 {
		t.Fatalf("include_archived len %d", len(got))
	}
	// delete
	w = doJSON(t, s, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, base, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get deleted code %v", w.Code)
	}
}

func TestProductsAreScopedByUser(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Streamers", 5)
	w := doAs(t, s, "user-2", http.MethodGet, "/api/v1/products/"+p.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("other user code %v", w.Code)
	}
}

func TestOrderFlow(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Party Hat", 5)

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{
		"mode":  "retail",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 2}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create order %v: %s", w.Code, w.Body.String())
	}
	res := decode[service.CheckoutResult](t, w)
	if res.Queued || !res.Order.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("order %+v", res)
	}
	if got := productStock(t, s, p.ID); got != 3 {
		t.Fatalf("stock after order %d", got)
	}

	// get
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/"+res.Order.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order %v", w.Code)
	}
	// not enough stock
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{
		"mode":  "retail",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 4}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("insufficient stock code %v", w.Code)
	}
	// cancel restores stock
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+res.Order.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel %v: %s", w.Code, w.Body.String())
	}
	if got := decode[domain.Order](t, w); got.CancelledBy != testUser {
		t.Fatalf("cancelled by %q", got.CancelledBy)
	}
	if got := productStock(t, s, p.ID); got != 5 {
		t.Fatalf("stock after cancel %d", got)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+res.Order.ID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel code %v", w.Code)
	}
	// list
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders?status=cancelled", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list %v", w.Code)
	}
	if got := decode[service.OrderList](t, w); len(got.Orders) != 1 {
		t.Fatalf("cancelled orders %d", len(got.Orders))
	}
}

func TestWholesalePayments(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Confetti", 10)

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{
		"mode":     "wholesale",
		"items":    []map[string]any{{"product_id": p.ID, "quantity": 2}},
		"customer": map[string]any{"name": "Ravi Stores", "phone": "9000000001"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("wholesale order %v: %s", w.Code, w.Body.String())
	}
	order := decode[service.CheckoutResult](t, w).Order
	if !order.BalanceDue.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("balance due %s", order.BalanceDue)
	}

	path := "/api/v1/orders/" + order.ID + "/payments"
	w = doJSON(t, s, http.MethodPost, path, map[string]any{"amount": 5, "notes": "cash"})
	if w.Code != http.StatusOK {
		t.Fatalf("payment %v: %s", w.Code, w.Body.String())
	}
	if got := decode[domain.Order](t, w); got.PaymentStatus != domain.PaymentPartial {
		t.Fatalf("payment status %s", got.PaymentStatus)
	}
	w = doJSON(t, s, http.MethodPost, path, map[string]any{"amount": 20})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("overpayment code %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/customers", nil)
	customers := decode[[]domain.Customer](t, w)
	if len(customers) != 1 || !customers[0].TotalDue.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("customers %+v", customers)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/customers/"+customers[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get customer %v", w.Code)
	}
}

func TestCustomerCreate(t *testing.T) {
	s := setupServer(t)
	body := map[string]any{"name": "Asha", "phone": "9000000002"}
	w := doJSON(t, s, http.MethodPost, "/api/v1/customers", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/customers", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate phone code %v", w.Code)
	}
}

func TestOfflineCheckoutQueuedThenSynced(t *testing.T) {
	h := newHarness(t, nil)
	s := h.srv
	p := createProduct(t, s, "Candles", 6)
	// warm the catalog snapshot
	if w := doJSON(t, s, http.MethodGet, "/api/v1/products", nil); w.Code != http.StatusOK {
		t.Fatalf("list %v", w.Code)
	}

	h.goOffline()
	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{
		"mode":  "retail",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 2}},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("offline order %v: %s", w.Code, w.Body.String())
	}
	res := decode[service.CheckoutResult](t, w)
	if !res.Queued || res.Order.LocalID == "" {
		t.Fatalf("queued result %+v", res)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/sync", nil)
	if st := decode[offline.StatusReport](t, w); st.Status != offline.StatusPending || st.Pending != 1 {
		t.Fatalf("sync status %+v", st)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders", nil)
	if list := decode[service.OrderList](t, w); !list.Offline || list.Pending != 1 {
		t.Fatalf("offline listing %+v", list)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+res.Order.LocalID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel pending code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/sync", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("drain offline code %v", w.Code)
	}

	h.goOnline()
	w = doJSON(t, s, http.MethodPost, "/api/v1/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("drain %v: %s", w.Code, w.Body.String())
	}
	if dr := decode[offline.DrainResult](t, w); dr.Status != offline.StatusSynced || len(dr.Committed) != 1 {
		t.Fatalf("drain result %+v", dr)
	}
	if got := productStock(t, s, p.ID); got != 4 {
		t.Fatalf("stock after sync %d", got)
	}
}

func TestCartFlow(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Banner", 10)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": p.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("add %v: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/items/"+p.ID, map[string]any{"quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("quantity %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/mode", map[string]any{"mode": "bulk"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad mode code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/items/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("remove missing code %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/checkout", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v: %s", w.Code, w.Body.String())
	}
	if res := decode[service.CheckoutResult](t, w); !res.Order.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("total %s", res.Order.Total)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", nil)
	if cart := decode[domain.Cart](t, w); len(cart.Items) != 0 {
		t.Fatalf("cart not cleared: %+v", cart)
	}
	if got := productStock(t, s, p.ID); got != 7 {
		t.Fatalf("stock %d", got)
	}
}

func TestDashboard(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Masks", 3)
	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", map[string]any{
		"mode":  "retail",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 1}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("order %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard %v", w.Code)
	}
	sum := decode[service.Summary](t, w)
	if !sum.TodaySales.Equal(decimal.NewFromInt(10)) || sum.Orders.Today != 1 {
		t.Fatalf("summary %+v", sum)
	}
	if len(sum.TopProducts) != 1 || sum.TopProducts[0].ProductID != p.ID {
		t.Fatalf("top products %+v", sum.TopProducts)
	}
}

func TestSessionAndSubscription(t *testing.T) {
	s := setupServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sign in %v", w.Code)
	}
	if got := decode[sessionResp](t, w); got.Account.Status != domain.AccountTrial {
		t.Fatalf("account %+v", got.Account)
	}

	w = doJSON(t, s, http.MethodPut, "/api/v1/subscription", map[string]any{"tier": "GOLD"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad tier code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPut, "/api/v1/subscription", map[string]any{"tier": "PAID"})
	if w.Code != http.StatusOK {
		t.Fatalf("set tier %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/subscription", nil)
	if got := decode[subscriptionResp](t, w); got.Limits.MaxProducts != 1000 {
		t.Fatalf("limits %+v", got.Limits)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/session", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("sign out %v", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newHarness(t, ratelimit.New(2, time.Minute)).srv
	for i := 0; i < 2; i++ {
		if w := doJSON(t, s, http.MethodGet, "/api/v1/cart", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d code %v", i, w.Code)
		}
	}
	w := doJSON(t, s, http.MethodGet, "/api/v1/cart", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request code %v", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}
	// separate budget per user
	if w := doAs(t, s, "user-2", http.MethodGet, "/api/v1/cart", nil); w.Code != http.StatusOK {
		t.Fatalf("other user code %v", w.Code)
	}
}

func TestMapErrorToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("name", "is required"), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrInsufficientStock, http.StatusConflict},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrLimitReached, http.StatusForbidden},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.NewTransportError("ping", errors.New("timeout")), http.StatusServiceUnavailable},
		{domain.ErrQuotaExceeded, http.StatusInsufficientStorage},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToStatus(tc.err); got != tc.want {
			t.Fatalf("%v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestSignOutKeepsStoredCart(t *testing.T) {
	s := setupServer(t)
	p := createProduct(t, s, "Whistles", 4)
	if w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": p.ID}); w.Code != http.StatusOK {
		t.Fatalf("add %v", w.Code)
	}
	if w := doJSON(t, s, http.MethodDelete, "/api/v1/session", nil); w.Code != http.StatusNoContent {
		t.Fatalf("sign out %v", w.Code)
	}
	w := doJSON(t, s, http.MethodGet, "/api/v1/cart", nil)
	if cart := decode[domain.Cart](t, w); len(cart.Items) != 1 {
		t.Fatalf("cart after sign-in again: %+v", cart)
	}
}
