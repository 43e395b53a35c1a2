package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/metrics"
)

// Instrument records request counts and latency labelled by route pattern.
func Instrument(m *metrics.ServerMetrics) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			h.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.Observe(route, status, time.Since(start))
			sugar.Debugw("request served", "method", r.Method, "route", route, "status", status, "elapsed", time.Since(start))
		})
	}
}
