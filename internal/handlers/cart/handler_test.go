package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cedra_cart/internal/cache"
	"cedra_cart/internal/checkout"
	"cedra_cart/internal/middleware"
	"cedra_cart/internal/pricing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	mu       sync.Mutex
	payErr   error
	payments []checkout.PaymentRequest
}

func (g *stubGateway) ClientToken(_ context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "ct-guest", nil
	}
	return "ct-user", nil
}

func (g *stubGateway) Pay(_ context.Context, _ string, req checkout.PaymentRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments = append(g.payments, req)
	return g.payErr
}

func (g *stubGateway) Payments() []checkout.PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]checkout.PaymentRequest(nil), g.payments...)
}

type testEnv struct {
	router   *gin.Engine
	registry *Registry
	gateway  *stubGateway
	cookie   string
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	formatter, err := pricing.NewFormatter("USD", "en-US")
	require.NoError(t, err)

	gw := &stubGateway{}
	registry := NewRegistry(RegistryConfig{
		Storage:        cache.NewMemoryStore(),
		Gateway:        gw,
		Pricing:        formatter,
		RequestTimeout: time.Second,
	})
	t.Cleanup(registry.Close)

	h := NewHandler(registry, NewCookieStore([]byte("session-secret"), false), nil)

	r := gin.New()
	api := r.Group("/api/cart", middleware.Auth(jwtSecret, nil))
	api.GET("", h.GetCart)
	api.PUT("", h.ReplaceCart)
	api.DELETE("/items/:id", h.RemoveItem)
	api.POST("/widget", h.WidgetReady)
	api.POST("/payment", h.SubmitPayment)
	api.GET("/ws", h.Live(Upgrader(nil)))

	return &testEnv{router: r, registry: registry, gateway: gw}
}

func (e *testEnv) login(t *testing.T, address string) {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u-1",
		"name":    "Ana",
		"email":   "ana@example.com",
		"address": address,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwtSecret)
	require.NoError(t, err)
	e.token = token
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != "" {
		req.Header.Set("Cookie", e.cookie)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if setCookie := w.Header().Get("Set-Cookie"); setCookie != "" {
		e.cookie = strings.SplitN(setCookie, ";", 2)[0]
	}

	var resp Response
	if w.Code != http.StatusBadRequest && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (e *testEnv) waitView(t *testing.T, cond func(Response) bool) Response {
	t.Helper()
	var last Response
	require.Eventually(t, func() bool {
		_, last = e.do(t, http.MethodGet, "/api/cart", "")
		return cond(last)
	}, 2*time.Second, 10*time.Millisecond)
	return last
}

const twoItems = `[
	{"_id":"a","name":"Shirt","description":"A very long description that goes on","price":20},
	{"_id":"b","name":"Hat","description":"Straw hat","price":15}
]`

// readyForPayment remplit le panier et signale le widget prêt.
func (e *testEnv) readyForPayment(t *testing.T) {
	t.Helper()
	e.login(t, "1 rue de Paris")

	w, _ := e.do(t, http.MethodPut, "/api/cart", twoItems)
	require.Equal(t, http.StatusOK, w.Code)

	view := e.waitView(t, func(r Response) bool { return r.ClientToken == "ct-user" })
	assert.True(t, view.ShowWidget)
	assert.False(t, view.SubmitEnabled)

	w, _ = e.do(t, http.MethodPost, "/api/cart/widget", `{"clientToken":"ct-user"}`)
	require.Equal(t, http.StatusOK, w.Code)

	e.waitView(t, func(r Response) bool { return r.SubmitEnabled })
}

func TestGetCart_GuestGetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodGet, "/api/cart", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, env.cookie)
	assert.Equal(t, "Hello Guest", resp.Greeting)
	assert.Equal(t, "Your Cart Is Empty!", resp.Summary)
	assert.Equal(t, "guest", resp.State)
	assert.Equal(t, &checkout.Target{Path: "/login", State: "/cart"}, resp.Login)
	assert.Equal(t, "$0.00", resp.Total)

	// même cookie, même session
	env.do(t, http.MethodGet, "/api/cart", "")
	assert.Equal(t, 1, env.registry.Len())
}

func TestReplaceAndRemove(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPut, "/api/cart", twoItems)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "$35.00", resp.Total)
	assert.Equal(t, "A very long description that g...", resp.Items[0].Description)
	assert.Equal(t, "/api/v1/product/product-photo/a", resp.Items[0].PhotoURL)
	assert.Equal(t, "You have 2 item(s) in your cart. Please Login To Checkout!", resp.Summary)

	w, resp = env.do(t, http.MethodDelete, "/api/cart/items/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "b", resp.Items[0].ID)
	assert.Equal(t, "$15.00", resp.Total)

	w, _ = env.do(t, http.MethodPut, "/api/cart", `{"not":"a cart"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddressRequired(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "")

	env.do(t, http.MethodPut, "/api/cart", twoItems)
	view := env.waitView(t, func(r Response) bool { return r.State == "address_required" })

	assert.False(t, view.ShowWidget)
	assert.Equal(t, &checkout.Target{Path: "/dashboard/user/profile"}, view.Profile)
	assert.Equal(t, "Hello Ana", view.Greeting)
}

func TestPayment_Success(t *testing.T) {
	env := newTestEnv(t)
	env.readyForPayment(t)

	w, resp := env.do(t, http.MethodPost, "/api/cart/payment", `{"nonce":"fake-valid-nonce"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, &checkout.Target{Path: "/dashboard/user/orders"}, resp.Redirect)
	assert.Equal(t, []Toast{{Type: "success", Message: checkout.PaymentSuccessMessage}}, resp.Toasts)
	assert.Empty(t, resp.Items)
	assert.Equal(t, checkout.PhaseCompleted, resp.Phase)

	payments := env.gateway.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "fake-valid-nonce", payments[0].Nonce)
	assert.Len(t, payments[0].Cart, 2)

	// les événements ne sont livrés qu'une fois
	_, again := env.do(t, http.MethodGet, "/api/cart", "")
	assert.Nil(t, again.Redirect)
	assert.Empty(t, again.Toasts)
}

func TestPayment_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payErr = errors.New("declined")
	env.readyForPayment(t)

	w, resp := env.do(t, http.MethodPost, "/api/cart/payment", `{"nonce":"fake-valid-nonce"}`)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Nil(t, resp.Redirect)
	assert.Equal(t, []Toast{{Type: "error", Message: checkout.PaymentFailureMessage}}, resp.Toasts)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, "ct-user", resp.ClientToken)
	assert.False(t, resp.SubmitEnabled)

	// le widget doit être confirmé à nouveau
	w, _ = env.do(t, http.MethodPost, "/api/cart/widget", `{"clientToken":"ct-user"}`)
	require.Equal(t, http.StatusOK, w.Code)
	env.waitView(t, func(r Response) bool { return r.SubmitEnabled })
}

func TestPayment_Rejected(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "1 rue de Paris")
	env.do(t, http.MethodPut, "/api/cart", twoItems)

	w, _ := env.do(t, http.MethodPost, "/api/cart/payment", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/cart/payment", `{"nonce":"n"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, env.gateway.Payments())
}

func TestWidgetReady_StaleToken(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "1 rue de Paris")
	env.do(t, http.MethodPut, "/api/cart", twoItems)
	env.waitView(t, func(r Response) bool { return r.ShowWidget })

	// l'initialisation en attente attend "ct-user"
	require.Eventually(t, func() bool {
		w, _ := env.do(t, http.MethodPost, "/api/cart/widget", `{"clientToken":"ct-old"}`)
		return w.Code == http.StatusConflict
	}, 2*time.Second, 10*time.Millisecond)

	w, _ := env.do(t, http.MethodPost, "/api/cart/widget", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLive_PushesView(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	env.do(t, http.MethodGet, "/api/cart", "")
	require.NotEmpty(t, env.cookie)

	header := http.Header{}
	header.Set("Cookie", env.cookie)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cart/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	var first message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "connected", first.Type)

	w, _ := env.do(t, http.MethodPut, "/api/cart", twoItems)
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "cart_updated", msg.Type)
		if msg.Count == 2 {
			break
		}
	}
}

func TestLive_KeepsAuthenticatedCheckout(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)
	env.readyForPayment(t)

	// le navigateur n'envoie que le cookie sur le WebSocket
	header := http.Header{}
	header.Set("Cookie", env.cookie)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cart/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	var first message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "connected", first.Type)
	assert.Equal(t, "payment", first.State)
	assert.Equal(t, "Hello Ana", first.Greeting)
	assert.True(t, first.SubmitEnabled)

	_, view := env.do(t, http.MethodGet, "/api/cart", "")
	assert.Equal(t, "payment", view.State)
	assert.Equal(t, "ct-user", view.ClientToken)
	assert.True(t, view.SubmitEnabled)

	w, resp := env.do(t, http.MethodPost, "/api/cart/payment", `{"nonce":"fake-valid-nonce"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, checkout.PhaseCompleted, resp.Phase)
}
