package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStandardChain(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := New(zap.New(core), prometheus.NewRegistry(), nil)

	router := mux.NewRouter()
	router.Handle("/items/{id}", m.API().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).Methods("GET")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "deny", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/items/{id}", "GET", "418")))
	entries := logs.FilterMessage("Request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
		assert.Equal(t, "/items/42", entries[0].ContextMap()["uri"])
	}
}

func TestRecoverPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m := New(zap.New(core), prometheus.NewRegistry(), nil)

	h := m.Standard().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.Equal(t, 1, logs.FilterMessage("Panic while serving request").Len())
}
