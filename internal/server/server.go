// Пакет server: HTTP-сервер Compliance Service с graceful shutdown.
// Без TLS: HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/signalfire/content-compliance/internal/api/handlers"
	"github.com/signalfire/content-compliance/internal/api/middleware"
	"github.com/signalfire/content-compliance/internal/config"
	"github.com/signalfire/content-compliance/internal/domain/rbac"
	uihandlers "github.com/signalfire/content-compliance/internal/ui/handlers"
)

// Server: HTTP-сервер Compliance Service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Middlewares: middleware, собранные в main.
// JWTAuth и Validator могут быть nil для тестирования.
type Middlewares struct {
	JWTAuth     *middleware.JWTAuth
	Validator   *middleware.RequestValidator
	RateLimiter *middleware.RateLimiter
}

// New создаёт HTTP-сервер с маршрутами admin API, публичной формы
// проверки и инфраструктурными endpoints.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	review *uihandlers.ReviewHandler,
	mw Middlewares,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, api, review, mw),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты сервиса.
func NewRouter(
	logger *slog.Logger,
	api *handlers.APIHandler,
	review *uihandlers.ReviewHandler,
	mw Middlewares,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без JWT.
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if mw.JWTAuth != nil {
			r.Use(mw.JWTAuth.Middleware())
		}
		if mw.Validator != nil {
			r.Use(mw.Validator.Middleware())
		}

		// Редакторы работают с контентом.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleEditor))
			r.Put("/content/{contentID}", api.UpsertContent)
			r.Get("/content/{contentID}/compliance", api.GetCompliance)
			r.Put("/content/{contentID}/compliance", api.SaveCompliance)
			r.Post("/content/{contentID}/send-review", api.SendReview)
		})

		// Остальное: только администраторы.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))
			r.Get("/settings", api.GetSettings)
			r.Put("/settings", api.UpdateSettings)
			r.Post("/sweep/run", api.RunSweep)
			r.Post("/test-email", api.SendTestEmail)
			r.Get("/reviews/{reviewID}", api.GetReview)
			r.Post("/reviews/{reviewID}/processed", api.MarkReviewProcessed)
			r.Post("/bulk-operations", api.CreateBulkOperation)
			r.Patch("/bulk-operations/{operationID}", api.UpdateBulkOperation)
			r.Get("/reports/summary", api.GetReportSummary)
		})
	})

	router.Route("/review/{token}", func(r chi.Router) {
		r.Get("/", review.HandleForm)
		r.Group(func(r chi.Router) {
			// Лимит только на отправку форм: перебор пароля и токенов.
			if mw.RateLimiter != nil {
				r.Use(mw.RateLimiter.Middleware(review.RateLimited))
			}
			r.Post("/", review.HandleSubmit)
			r.Post("/password", review.HandlePassword)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
