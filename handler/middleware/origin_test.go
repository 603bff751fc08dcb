package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		referer string
		want    bool
	}{
		{name: "no headers", want: true},
		{name: "same host", origin: "http://example.com", want: true},
		{name: "cross origin", origin: "https://evil.example", want: false},
		{name: "null origin", origin: "null", want: false},
		{name: "allowed origin", allowed: []string{"https://app.example/"}, origin: "https://app.example", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "referer same host", referer: "http://example.com/", want: true},
		{name: "referer cross origin", referer: "https://evil.example/page", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/list", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			assert.Equal(t, tt.want, OriginChecker(tt.allowed)(req))
		})
	}
}

func TestRequireOrigin(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := New(zap.New(core), prometheus.NewRegistry(), nil)

	calls := 0
	h := m.Standard().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	req := httptest.NewRequest(http.MethodPost, "/properties/1/buy", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, calls)
	assert.Equal(t, 1, logs.FilterMessage("Rejected cross-origin request").Len())

	// 読み取りはオリジンに関係なく通す
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestRequireJSON(t *testing.T) {
	m := New(nil, prometheus.NewRegistry(), nil)
	calls := 0
	h := m.API().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/properties/1/buy", strings.NewReader(`{"price_wei":"1"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, ct)
	}
	assert.Zero(t, calls)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/properties/1/buy", strings.NewReader(`{"price_wei":"1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
