package providers

import (
	"net/http"
	"time"
)

// RequestLoggerMiddleware writes one line per request to the log type
// matching the request method.
func RequestLoggerMiddleware(logger Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Infof(GetLogTypeByRequestType(r.Method), "%s %s %d %s",
				r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}
