// Package handler はブラウザ向けの画面（HTML + WebSocket）を提供する
package handler

import (
	"context"
	"embed"
	"html/template"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"property-market-onchain/model"
	"property-market-onchain/units"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Controller は画面の操作を受け付けるコントローラー
type Controller interface {
	Reconnect(ctx context.Context) error
	ListProperty(ctx context.Context, priceInput string) (*model.TxResult, error)
	BuyProperty(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error)
	RefreshListings(ctx context.Context) ([]model.PropertyCard, error)
	SessionInfo() model.SessionInfo
}

// pageData はテンプレートに渡す値
type pageData struct {
	Session       model.SessionInfo
	Notifications []model.Notification
	PriceInput    string
	Listings      Listings
}

type WebHandler struct {
	controller Controller
	page       *Page
	hub        *Hub
	logger     *zap.Logger
}

func NewWebHandler(controller Controller, page *Page, hub *Hub, logger *zap.Logger) *WebHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebHandler{
		controller: controller,
		page:       page,
		hub:        hub,
		logger:     logger.Named("web"),
	}
}

// HandleIndex は画面を描画する
func (h *WebHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Session:       h.controller.SessionInfo(),
		Notifications: h.page.TakeNotifications(),
		PriceInput:    h.page.PriceInput(),
		Listings:      h.page.Listings(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("Failed to render page", zap.Error(err))
	}
}

// HandleList は価格入力欄の値で出品する
func (h *WebHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	price := r.PostFormValue("price")
	h.page.SetPriceInput(price)

	// 結果は通知として画面に表示される
	if _, err := h.controller.ListProperty(r.Context(), price); err != nil {
		h.logger.Debug("List property failed", zap.Error(err))
	}
	redirectHome(w, r)
}

// HandleBuy はカードに描画された価格で物件を購入する
func (h *WebHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	card, ok := h.page.Card(idStr)
	if !ok {
		http.Error(w, "Property not found", http.StatusNotFound)
		return
	}
	id, ok := new(big.Int).SetString(card.ID, 10)
	if !ok {
		http.Error(w, "Invalid property ID", http.StatusBadRequest)
		return
	}
	price, err := units.ParseWei(card.PriceWei)
	if err != nil {
		http.Error(w, "Invalid property price", http.StatusInternalServerError)
		return
	}

	if _, err := h.controller.BuyProperty(r.Context(), id, price); err != nil {
		h.logger.Debug("Buy property failed", zap.String("property_id", idStr), zap.Error(err))
	}
	redirectHome(w, r)
}

// HandleConnect はウォレットへの接続をやり直す
func (h *WebHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Reconnect(r.Context()); err != nil {
		h.logger.Debug("Reconnect failed", zap.Error(err))
	}
	redirectHome(w, r)
}

// HandleRefresh は一覧を読み込み直す
func (h *WebHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.controller.RefreshListings(r.Context()); err != nil {
		h.logger.Debug("Refresh failed", zap.Error(err))
	}
	redirectHome(w, r)
}

// HandleWS は画面更新を受け取るWebSocket
func (h *WebHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// RegisterRoutes は画面のルートを登録する
func (h *WebHandler) RegisterRoutes(router *mux.Router, wrap func(http.HandlerFunc) http.Handler) {
	router.Handle("/", wrap(h.HandleIndex)).Methods("GET")
	router.Handle("/list", wrap(h.HandleList)).Methods("POST")
	router.Handle("/properties/{id:[0-9]+}/buy", wrap(h.HandleBuy)).Methods("POST")
	router.Handle("/connect", wrap(h.HandleConnect)).Methods("POST")
	router.Handle("/refresh", wrap(h.HandleRefresh)).Methods("POST")
	router.Handle("/ws", wrap(h.HandleWS)).Methods("GET")
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
