package middleware

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// OriginChecker は Origin（なければ Referer）が自ホストか allowed に含まれるかを判定する
// どちらのヘッダーもないリクエスト（CLIなど）は許可する。"*" は全許可
func OriginChecker(allowed []string) func(r *http.Request) bool {
	all := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			all = true
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin, ok := requestOrigin(r)
		if !ok {
			return true
		}
		if all {
			return true
		}
		if _, found := set[strings.ToLower(origin)]; found {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host)
	}
}

// requestOrigin はリクエスト元のオリジンを返す（ヘッダーがなければ ok=false）
func requestOrigin(r *http.Request) (string, bool) {
	if o := r.Header.Get("Origin"); o != "" {
		return o, true
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "null", true
	}
	return u.Scheme + "://" + u.Host, true
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RequireOrigin は許可されていないオリジンからの状態変更リクエストを403で拒否する
func (m *Middleware) RequireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSafeMethod(r.Method) && !m.checkOrigin(r) {
			origin, _ := requestOrigin(r)
			m.logger.Warn("Rejected cross-origin request",
				zap.String("method", r.Method),
				zap.String("uri", r.URL.RequestURI()),
				zap.String("origin", origin))
			http.Error(w, "Forbidden origin", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON は状態変更リクエストの Content-Type が application/json であることを要求する
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSafeMethod(r.Method) {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
