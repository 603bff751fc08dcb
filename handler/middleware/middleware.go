// Package middleware はHTTPハンドラー共通のミドルウェア
package middleware

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Middleware はリクエストログ・パニック回復・オリジン検証・HTTPメトリクスを提供する
type Middleware struct {
	logger      *zap.Logger
	checkOrigin func(r *http.Request) bool
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New はミドルウェアを作成し、HTTPメトリクスを reg に登録する
// allowedOrigins が空なら自ホストからの状態変更リクエストのみ受け付ける
func New(logger *zap.Logger, reg prometheus.Registerer, allowedOrigins []string) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	return &Middleware{
		logger:      logger.Named("http"),
		checkOrigin: OriginChecker(allowedOrigins),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "property_market",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "property_market",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Standard は全ルート共通のチェーン
func (m *Middleware) Standard() alice.Chain {
	return alice.New(m.RecoverPanic, m.LogRequest, SecureHeaders, m.RequireOrigin)
}

// API はJSON APIのチェーン
func (m *Middleware) API() alice.Chain {
	return m.Standard().Append(MakeResponseJSON, RequireJSON)
}

func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		next.ServeHTTP(w, r)
	})
}

func MakeResponseJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		elapsed := time.Since(start)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		m.logger.Info("Request",
			zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	})
}

func (m *Middleware) RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("Panic while serving request",
					zap.String("uri", r.URL.RequestURI()),
					zap.Error(fmt.Errorf("%v", err)),
					zap.Stack("stack"))
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routeTemplate はラベルの爆発を避けるためパスではなくルートのテンプレートを返す
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Hijack はWebSocketのアップグレードに必要
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
