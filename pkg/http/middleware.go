// Package http provides HTTP middleware for the configuration service.
package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/txn2/mcp-element-config/pkg/identity"
)

// IdentityMiddleware copies the user named in header into the request
// context, where it becomes the creator of stored revisions.
func IdentityMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := strings.TrimSpace(r.Header.Get(header)); user != "" {
				r = r.WithContext(identity.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics counts HTTP requests per handler.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the HTTP request metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "element_config_http_requests_total",
			Help: "Total number of HTTP requests by handler, method and status code",
		}, []string{"handler", "method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "element_config_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by handler",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
	}
}

// Wrap instruments next under the handler label name.
func (m *Metrics) Wrap(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requests.WithLabelValues(name, r.Method, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	})
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Flush supports streaming responses of the MCP transport.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
