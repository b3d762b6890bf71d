package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// accessLog writes one structured record per request and feeds the HTTP
// collectors.
func accessLog(logger log.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			fields := []any{
				log.HTTPMethodKey, r.Method,
				log.HTTPPathKey, r.URL.Path,
				log.HTTPStatusKey, status,
				log.HTTPBytesKey, ww.BytesWritten(),
				log.DurationMsKey, elapsed.Milliseconds(),
				log.RequestIDKey, middleware.GetReqID(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("HTTP request", fields...)
				return
			}
			logger.Info("HTTP request", fields...)
		})
	}
}
