package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-market-onchain/gateway/contract"
	"property-market-onchain/model"
	usecase "property-market-onchain/usecase/property"
)

type fakeController struct {
	err error

	listInput string
	buyID     string
	buyPrice  string
	expected  *big.Int
	fromBlock uint64
	cards     []model.PropertyCard
}

func (c *fakeController) Reconnect(ctx context.Context) error { return c.err }

func (c *fakeController) SessionInfo() model.SessionInfo {
	return model.SessionInfo{State: model.StateConnected, Account: "0xAbc", ChainID: "11155111", ContractAddress: "0xC0ffee"}
}

func (c *fakeController) ListProperty(ctx context.Context, priceInput string) (*model.TxResult, error) {
	c.listInput = priceInput
	if c.err != nil {
		return nil, c.err
	}
	return &model.TxResult{TxHash: "0xlist", Success: true}, nil
}

func (c *fakeController) BuyProperty(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error) {
	c.buyID, c.buyPrice = id.String(), priceWei.String()
	if c.err != nil {
		return nil, c.err
	}
	return &model.TxResult{TxHash: "0xbuy", Success: true}, nil
}

func (c *fakeController) RefreshListings(ctx context.Context) ([]model.PropertyCard, error) {
	return c.cards, c.err
}

func (c *fakeController) GetProperty(ctx context.Context, id *big.Int) (*model.PropertyCard, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &model.PropertyCard{ID: id.String(), PriceETH: "1"}, nil
}

func (c *fakeController) VerifyTransaction(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error) {
	c.expected = expectedWei
	if c.err != nil {
		return nil, c.err
	}
	return &model.TxVerification{TxHash: txHash, Status: "success", Success: true, ValueMatched: true}, nil
}

func (c *fakeController) RecentEvents(ctx context.Context, fromBlock uint64) ([]*model.ContractEvent, error) {
	c.fromBlock = fromBlock
	return nil, c.err
}

func newTestRouter(c *fakeController) *mux.Router {
	router := mux.NewRouter()
	NewPropertyHandler(c).RegisterRoutes(router, func(f http.HandlerFunc) http.Handler { return f })
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleListProperties(t *testing.T) {
	c := &fakeController{cards: []model.PropertyCard{{ID: "1", PriceETH: "1.5"}, {ID: "2", PriceETH: "2"}}}
	rec := do(newTestRouter(c), http.MethodGet, "/api/v1/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Properties []model.PropertyCard `json:"properties"`
		Count      int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "1.5", body.Properties[0].PriceETH)
}

func TestHandleListProperties_EmptyIsArray(t *testing.T) {
	rec := do(newTestRouter(&fakeController{}), http.MethodGet, "/api/v1/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"properties":[]`)
}

func TestHandleCreateProperty(t *testing.T) {
	c := &fakeController{}
	rec := do(newTestRouter(c), http.MethodPost, "/api/v1/properties", `{"price":"1.5"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1.5", c.listInput)
	assert.Contains(t, rec.Body.String(), `"tx_hash":"0xlist"`)

	rec = do(newTestRouter(c), http.MethodPost, "/api/v1/properties", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBuyProperty(t *testing.T) {
	c := &fakeController{}
	rec := do(newTestRouter(c), http.MethodPost, "/api/v1/properties/12/buy", `{"price_wei":"1500000000000000000"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12", c.buyID)
	assert.Equal(t, "1500000000000000000", c.buyPrice)

	rec = do(newTestRouter(c), http.MethodPost, "/api/v1/properties/12/buy", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(newTestRouter(c), http.MethodPost, "/api/v1/properties/12/buy", `{"price_wei":"1.5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(newTestRouter(c), http.MethodPost, "/api/v1/properties/x/buy", `{"price_wei":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVerifyTransaction(t *testing.T) {
	c := &fakeController{}
	rec := do(newTestRouter(c), http.MethodPost, "/api/v1/contract/verify-tx", `{"tx_hash":"0xabc","expected_wei":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", c.expected.String())
	assert.Contains(t, rec.Body.String(), `"value_matched":true`)

	rec = do(newTestRouter(c), http.MethodPost, "/api/v1/contract/verify-tx", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvents(t *testing.T) {
	c := &fakeController{}
	rec := do(newTestRouter(c), http.MethodGet, "/api/v1/contract/events?from_block=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(100), c.fromBlock)
	assert.Contains(t, rec.Body.String(), `"events":[]`)

	rec = do(newTestRouter(c), http.MethodGet, "/api/v1/contract/events?from_block=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionAndContractInfo(t *testing.T) {
	router := newTestRouter(&fakeController{})

	rec := do(router, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"connected"`)

	rec = do(router, http.MethodGet, "/api/v1/contract/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contract_address":"0xC0ffee"`)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty", usecase.ErrInvalidPrice), http.StatusBadRequest},
		{contract.ErrInvalidTxHash, http.StatusBadRequest},
		{usecase.ErrAccessRejected, http.StatusForbidden},
		{fmt.Errorf("%w: 99", usecase.ErrPropertyNotFound), http.StatusNotFound},
		{contract.ErrTxNotFound, http.StatusNotFound},
		{usecase.ErrNoProvider, http.StatusServiceUnavailable},
		{usecase.ErrNotConnected, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", usecase.ErrCallFailed, contract.ErrReverted), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := do(newTestRouter(&fakeController{err: tt.err}), http.MethodPost, "/api/v1/properties", `{"price":"1"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
