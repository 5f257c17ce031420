package debug

import (
	"net/http"
	"strconv"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/cloudx-io/confidentialbid/metrics"
)

// ErrorCodeHeader carries the auction error code of a failed response, so
// middlewares can log it without decoding the body.
const ErrorCodeHeader = "X-Auction-Error-Code"

func GZipMiddleware(next http.Handler) http.Handler {
	return gziphandler.GzipHandler(next)
}

// LoggingMiddleware logs one line per request: server errors at warn, the
// rest at debug.
func LoggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			begin := time.Now()
			next.ServeHTTP(rec, r)

			lvl := level.Debug
			if rec.status() >= http.StatusInternalServerError {
				lvl = level.Warn
			}
			keyvals := []any{
				"remote_addr", r.RemoteAddr,
				"route", routeName(r),
				"code", rec.status(),
				"bytes", rec.bytes,
				"took", time.Since(begin).Truncate(time.Microsecond),
			}
			if code := rec.Header().Get(ErrorCodeHeader); code != "" {
				keyvals = append(keyvals, "error_code", code)
			}
			lvl(logger).Log(keyvals...)
		})
	}
}

// MetricsMiddleware records request durations by route and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		begin := time.Now()
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestDurationSeconds.
			WithLabelValues(routeName(r), strconv.Itoa(rec.status())).
			Observe(time.Since(begin).Seconds())
	})
}

// routeName prefers the mux route template, so auction and bidder addresses
// don't explode label cardinality. It only sees the route when installed
// with mux.Router.Use.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
		if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
			return r.Method + " " + tpl
		}
	}
	return r.Method + " " + r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}
