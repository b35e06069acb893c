// metrics.go: Prometheus-метрики HTTP-запросов по поверхностям сервиса:
// admin API, публичная форма проверки, инфраструктурные endpoints.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cc_http_requests_total",
			Help: "HTTP requests by surface, method, route and status",
		},
		[]string{"surface", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cc_http_request_duration_seconds",
			Help:    "HTTP request latency by surface and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface", "method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность.
// Путь нормализуется, чтобы ID контента и токены ссылок не раздували кардинальность.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			path := normalizePath(r.URL.Path)
			surface := surfaceOf(path)
			httpRequestsTotal.WithLabelValues(surface, r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(surface, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// surfaceOf относит путь к admin API, публичной форме или инфраструктуре.
func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return "api"
	case strings.HasPrefix(path, "/review/"):
		return "review"
	}
	return "infra"
}

// normalizePath заменяет числовые ID на {id} и токен формы на {token}.
// /api/v1/content/42/compliance → /api/v1/content/{id}/compliance
// /review/8f0c…/password → /review/{token}/password
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
			continue
		case i == 2 && segments[1] == "review":
			segments[i] = "{token}"
		case isNumeric(seg):
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
