// logging.go: журнал HTTP-запросов через slog.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RequestLogger пишет одну запись на запрос. Уровень зависит от статуса: ERROR для 5xx, WARN для 4xx, иначе INFO.
// Токен ссылки проверки заменяется на {token}, ID контента остаются.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос",
				slog.String("method", r.Method),
				slog.String("path", redactPath(r.URL.Path)),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// redactPath скрывает токен в путях /review/{token}/...
func redactPath(path string) string {
	const prefix = "/review/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return path
	}
	if _, tail, found := strings.Cut(rest, "/"); found {
		return prefix + "{token}/" + tail
	}
	return prefix + "{token}"
}
