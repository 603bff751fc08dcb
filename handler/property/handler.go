// Package handler は物件マーケットのJSON APIを提供する
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"property-market-onchain/gateway/contract"
	"property-market-onchain/model"
	"property-market-onchain/units"
	usecase "property-market-onchain/usecase/property"
)

// Controller はAPIが使うコントローラー
type Controller interface {
	Reconnect(ctx context.Context) error
	SessionInfo() model.SessionInfo
	ListProperty(ctx context.Context, priceInput string) (*model.TxResult, error)
	BuyProperty(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error)
	RefreshListings(ctx context.Context) ([]model.PropertyCard, error)
	GetProperty(ctx context.Context, id *big.Int) (*model.PropertyCard, error)
	VerifyTransaction(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error)
	RecentEvents(ctx context.Context, fromBlock uint64) ([]*model.ContractEvent, error)
}

type PropertyHandler struct {
	controller Controller
}

func NewPropertyHandler(c Controller) *PropertyHandler {
	return &PropertyHandler{controller: c}
}

// HandleGetSession は接続情報を返す
func (h *PropertyHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.SessionInfo())
}

// HandleConnect はウォレットへの接続をやり直す
func (h *PropertyHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Reconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.SessionInfo())
}

// HandleListProperties は未売却の物件一覧を返す
func (h *PropertyHandler) HandleListProperties(w http.ResponseWriter, r *http.Request) {
	cards, err := h.controller.RefreshListings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []model.PropertyCard{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"properties": cards,
		"count":      len(cards),
	})
}

// HandleGetProperty はコントラクトから物件情報を取得
func (h *PropertyHandler) HandleGetProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		http.Error(w, "Invalid property ID", http.StatusBadRequest)
		return
	}

	card, err := h.controller.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// CreatePropertyRequest は出品リクエスト
type CreatePropertyRequest struct {
	Price string `json:"price"` // ETH
}

// HandleCreateProperty は物件を出品する
func (h *PropertyHandler) HandleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.controller.ListProperty(r.Context(), req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// BuyPropertyRequest は購入リクエスト
type BuyPropertyRequest struct {
	PriceWei string `json:"price_wei"`
}

// HandleBuyProperty は指定した金額で物件を購入する
func (h *PropertyHandler) HandleBuyProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		http.Error(w, "Invalid property ID", http.StatusBadRequest)
		return
	}

	var req BuyPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PriceWei == "" {
		http.Error(w, "price_wei is required", http.StatusBadRequest)
		return
	}
	price, err := units.ParseWei(req.PriceWei)
	if err != nil {
		http.Error(w, "Invalid price_wei", http.StatusBadRequest)
		return
	}

	res, err := h.controller.BuyProperty(r.Context(), id, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleContractInfo はコントラクト情報を返す
func (h *PropertyHandler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	info := h.controller.SessionInfo()
	writeJSON(w, http.StatusOK, map[string]string{
		"contract_address": info.ContractAddress,
		"chain_id":         info.ChainID,
		"state":            string(info.State),
	})
}

// VerifyTxRequest はトランザクション検証リクエスト
type VerifyTxRequest struct {
	TxHash      string `json:"tx_hash"`
	ExpectedWei string `json:"expected_wei,omitempty"`
}

// HandleVerifyTransaction はトランザクションを検証
func (h *PropertyHandler) HandleVerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req VerifyTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TxHash == "" {
		http.Error(w, "tx_hash is required", http.StatusBadRequest)
		return
	}

	var expected *big.Int
	if req.ExpectedWei != "" {
		v, err := units.ParseWei(req.ExpectedWei)
		if err != nil {
			http.Error(w, "Invalid expected_wei", http.StatusBadRequest)
			return
		}
		expected = v
	}

	verification, err := h.controller.VerifyTransaction(r.Context(), req.TxHash, expected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

// HandleEvents は過去の物件イベントを返す（from_block 省略時は直近のブロック）
func (h *PropertyHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var fromBlock uint64
	if s := r.URL.Query().Get("from_block"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "Invalid from_block", http.StatusBadRequest)
			return
		}
		fromBlock = v
	}

	events, err := h.controller.RecentEvents(r.Context(), fromBlock)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*model.ContractEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// RegisterRoutes はAPIのルートを登録する
func (h *PropertyHandler) RegisterRoutes(router *mux.Router, wrap func(http.HandlerFunc) http.Handler) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Handle("/session", wrap(h.HandleGetSession)).Methods("GET")
	api.Handle("/session/connect", wrap(h.HandleConnect)).Methods("POST")
	api.Handle("/properties", wrap(h.HandleListProperties)).Methods("GET")
	api.Handle("/properties", wrap(h.HandleCreateProperty)).Methods("POST")
	api.Handle("/properties/{id}", wrap(h.HandleGetProperty)).Methods("GET")
	api.Handle("/properties/{id}/buy", wrap(h.HandleBuyProperty)).Methods("POST")
	api.Handle("/contract/info", wrap(h.HandleContractInfo)).Methods("GET")
	api.Handle("/contract/verify-tx", wrap(h.HandleVerifyTransaction)).Methods("POST")
	api.Handle("/contract/events", wrap(h.HandleEvents)).Methods("GET")
}

func propertyID(r *http.Request) (*big.Int, bool) {
	id, ok := new(big.Int).SetString(mux.Vars(r)["id"], 10)
	if !ok || id.Sign() < 0 {
		return nil, false
	}
	return id, true
}

// statusFor はエラーをHTTPステータスに対応付ける
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidPrice), errors.Is(err, contract.ErrInvalidTxHash):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrAccessRejected):
		return http.StatusForbidden
	case errors.Is(err, usecase.ErrPropertyNotFound), errors.Is(err, contract.ErrTxNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrNoProvider), errors.Is(err, usecase.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, usecase.ErrCallFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
