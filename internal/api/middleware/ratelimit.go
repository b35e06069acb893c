// ratelimit.go: ограничение частоты запросов к публичной форме проверки.
// Token bucket на клиентский IP (golang.org/x/time/rate), устаревшие
// записи удаляются фоновой горутиной.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/signalfire/content-compliance/internal/api/errors"
)

var rateLimitRejections = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "cc_rate_limit_rejections_total",
		Help: "Количество запросов, отклонённых ограничителем частоты",
	},
)

const (
	limiterCleanupInterval = 30 * time.Second
	limiterIdleTTL         = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter: ограничитель частоты запросов по IP клиента.
// threshold запросов за window, всплеск до threshold.
type RateLimiter struct {
	mu       sync.Mutex
	limits   map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	window   time.Duration
	logger   *slog.Logger
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter создаёт ограничитель и запускает очистку устаревших записей.
// threshold <= 0 отключает ограничение. Для остановки вызвать Stop.
func NewRateLimiter(threshold int, window time.Duration, logger *slog.Logger) *RateLimiter {
	l := &RateLimiter{
		limits: make(map[string]*limiterEntry),
		burst:  threshold,
		window: window,
		logger: logger.With(slog.String("component", "rate_limiter")),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	if threshold > 0 && window > 0 {
		l.rps = rate.Limit(float64(threshold) * float64(time.Second) / float64(window))
	}
	go l.clean()
	return l
}

// Stop останавливает горутину очистки. Повторный вызов безопасен.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *RateLimiter) clean() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evict(l.now().Add(-limiterIdleTTL))
		}
	}
}

// evict удаляет записи, не использовавшиеся с cutoff.
func (l *RateLimiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.limits {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limits, key)
		}
	}
}

// Allow расходует токен для key и возвращает false, если лимит исчерпан.
func (l *RateLimiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}

	l.mu.Lock()
	entry, ok := l.limits[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limits[key] = entry
	}
	entry.lastSeen = l.now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Middleware возвращает HTTP middleware ограничения частоты.
// onLimit вызывается при превышении лимита. Если он nil, отдаётся JSON-ответ 429.
func (l *RateLimiter) Middleware(onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			apierrors.RateLimited(w, "Слишком много запросов, повторите позже")
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if ip := requestIP(r); ip != nil {
				key = ip.String()
			}
			if !l.Allow(key) {
				rateLimitRejections.Inc()
				l.logger.Warn("Превышен лимит запросов",
					slog.String("client", key),
					slog.String("path", redactPath(r.URL.Path)),
				)
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(l.window.Seconds()))))
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestIP извлекает IP клиента. X-Forwarded-For учитывается только
// при подключении с loopback (локальный reverse proxy).
func requestIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	remoteIP := net.ParseIP(strings.TrimSpace(host))
	if remoteIP == nil {
		return nil
	}

	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor == "" || !remoteIP.IsLoopback() {
		return remoteIP
	}
	for _, part := range strings.Split(forwardedFor, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil && !ip.IsLoopback() {
			return ip
		}
	}
	return remoteIP
}
