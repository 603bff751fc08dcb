package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-market-onchain/config"
	"property-market-onchain/handler/middleware"
	"property-market-onchain/model"
)

type buyCall struct {
	id    string
	price string
}

// fakeController は呼び出しを記録し、結果を画面に描画する
type fakeController struct {
	mu         sync.Mutex
	page       *Page
	listInputs []string
	buys       []buyCall
	reconnects int
	refreshes  int
}

func (c *fakeController) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	return nil
}

func (c *fakeController) ListProperty(ctx context.Context, priceInput string) (*model.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listInputs = append(c.listInputs, priceInput)
	c.page.Notify(model.Notification{Level: model.LevelSuccess, Message: "Property listed successfully"})
	c.page.ClearPriceInput()
	return &model.TxResult{TxHash: "0x1"}, nil
}

func (c *fakeController) BuyProperty(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buys = append(c.buys, buyCall{id: id.String(), price: priceWei.String()})
	return &model.TxResult{TxHash: "0x2"}, nil
}

func (c *fakeController) RefreshListings(ctx context.Context) ([]model.PropertyCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return nil, nil
}

func (c *fakeController) SessionInfo() model.SessionInfo {
	return model.SessionInfo{State: model.StateConnected, Account: "0xAbc", ChainID: "31337", ContractAddress: "0xC0ffee"}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []Message
}

func (b *recordingBroadcaster) Broadcast(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func newTestRouter(t *testing.T) (*mux.Router, *fakeController, *Page) {
	t.Helper()
	page := NewPage(nil)
	ctrl := &fakeController{page: page}
	h := NewWebHandler(ctrl, page, NewHub(nil, nil), nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router, func(f http.HandlerFunc) http.Handler { return f })
	return router, ctrl, page
}

func postForm(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleIndex_RendersCardsAndNotifications(t *testing.T) {
	router, _, page := newTestRouter(t)
	page.AppendCard(model.PropertyCard{ID: "3", Seller: "0xSeller", PriceWei: "1500000000000000000", PriceETH: "1.5"})
	page.Notify(model.Notification{Level: model.LevelError, Message: "Failed to buy property"})
	page.SetPriceInput(`"><script>alert(1)</script>`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "ID: 3")
	assert.Contains(t, body, "Seller: 0xSeller")
	assert.Contains(t, body, "Price: 1.5 ETH")
	assert.Contains(t, body, `action="/properties/3/buy"`)
	assert.Contains(t, body, "Failed to buy property")
	assert.NotContains(t, body, "<script>alert(1)</script>")

	// 通知は一度だけ表示する
	assert.Empty(t, page.TakeNotifications())
}

func TestHandleIndex_Placeholder(t *testing.T) {
	router, _, page := newTestRouter(t)
	page.ShowPlaceholder("No properties available.")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, rec.Body.String(), "No properties available.")
	assert.NotContains(t, rec.Body.String(), `class="card"`)
}

func TestHandleList(t *testing.T) {
	router, ctrl, page := newTestRouter(t)

	rec := postForm(router, "/list", url.Values{"price": {"1.5"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"1.5"}, ctrl.listInputs)
	assert.Empty(t, page.PriceInput())
}

func TestHandleBuy_UsesRenderedPrice(t *testing.T) {
	router, ctrl, page := newTestRouter(t)
	page.AppendCard(model.PropertyCard{ID: "9", PriceWei: "2000000000000000000", PriceETH: "2"})

	// フォームに価格が含まれていても、描画済みカードの価格を使う
	rec := postForm(router, "/properties/9/buy", url.Values{"price": {"1"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, ctrl.buys, 1)
	assert.Equal(t, buyCall{id: "9", price: "2000000000000000000"}, ctrl.buys[0])
}

func TestHandleBuy_UnknownProperty(t *testing.T) {
	router, ctrl, _ := newTestRouter(t)

	rec := postForm(router, "/properties/4/buy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, ctrl.buys)

	rec = postForm(router, "/properties/abc/buy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConnectAndRefresh(t *testing.T) {
	router, ctrl, _ := newTestRouter(t)

	assert.Equal(t, http.StatusSeeOther, postForm(router, "/connect", nil).Code)
	assert.Equal(t, http.StatusSeeOther, postForm(router, "/refresh", nil).Code)
	assert.Equal(t, 1, ctrl.reconnects)
	assert.Equal(t, 1, ctrl.refreshes)
}

func TestPage_BroadcastsChanges(t *testing.T) {
	b := &recordingBroadcaster{}
	page := NewPage(b)

	page.ClearListings()
	page.AppendCard(model.PropertyCard{ID: "1"})
	page.Notify(model.Notification{Message: "hello"})

	require.Len(t, b.messages, 2)
	assert.Equal(t, "listings", b.messages[0].Type)
	assert.Equal(t, Listings{Cards: []model.PropertyCard{{ID: "1"}}}, b.messages[0].Payload)
	assert.Equal(t, "notification", b.messages[1].Type)
}

func TestPage_NotificationLimit(t *testing.T) {
	page := NewPage(nil)
	for i := 0; i < maxNotifications+5; i++ {
		page.Notify(model.Notification{Message: "n"})
	}
	assert.Len(t, page.TakeNotifications(), maxNotifications)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Type: "notification", Payload: model.Notification{Message: "Property purchased"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string             `json:"type"`
		Payload model.Notification `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "notification", got.Type)
	assert.Equal(t, "Property purchased", got.Payload.Message)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandleBuy_RejectsCrossOriginPost(t *testing.T) {
	page := NewPage(nil)
	ctrl := &fakeController{page: page}
	h := NewWebHandler(ctrl, page, NewHub(nil, nil), nil)
	mw := middleware.New(nil, prometheus.NewRegistry(), config.Default().Server.AllowedOrigins)
	router := mux.NewRouter()
	h.RegisterRoutes(router, func(f http.HandlerFunc) http.Handler { return mw.Standard().ThenFunc(f) })
	page.AppendCard(model.PropertyCard{ID: "1", Seller: "0xSeller", PriceWei: "1000", PriceETH: "0.000000000000001"})

	buy := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/properties/1/buy", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := buy("https://evil.example")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ctrl.buys)

	// httptest のリクエストは Host: example.com
	rec = buy("http://example.com")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []buyCall{{id: "1", price: "1000"}}, ctrl.buys)
}
