// Точка входа Compliance Service. Сервис периодически просит мейнтейнеров
// подтвердить актуальность их контента.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой, API handlers и публичную форму проверки,
// запускает фоновые задачи (sweep, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/signalfire/content-compliance/internal/api/handlers"
	"github.com/signalfire/content-compliance/internal/api/middleware"
	"github.com/signalfire/content-compliance/internal/api/openapi"
	"github.com/signalfire/content-compliance/internal/config"
	"github.com/signalfire/content-compliance/internal/database"
	"github.com/signalfire/content-compliance/internal/mail"
	"github.com/signalfire/content-compliance/internal/repository"
	"github.com/signalfire/content-compliance/internal/server"
	"github.com/signalfire/content-compliance/internal/service"
	"github.com/signalfire/content-compliance/internal/ui/auth"
	uihandlers "github.com/signalfire/content-compliance/internal/ui/handlers"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Compliance Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CC_DEPHEALTH_GROUP") == "" {
		logger.Warn("CC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	// Проверка PostgreSQL идёт через общий пул и замечает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	settingsRepo := repository.NewSettingsRepository(pool)
	contentRepo := repository.NewContentRepository(pool)
	recordRepo := repository.NewComplianceRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	bulkRepo := repository.NewBulkOperationRepository(pool)
	sweepStateRepo := repository.NewSweepStateRepository(pool)

	// 6. Почта
	mailer := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)
	logger.Info("SMTP настроен",
		slog.String("host", cfg.SMTPHost),
		slog.Int("port", cfg.SMTPPort),
	)

	// 7. Services
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	notifier := service.NewNotifier(mailer, service.NotifierConfig{
		PublicBaseURL:  cfg.PublicBaseURL,
		SiteName:       cfg.SiteName,
		EditURLPattern: cfg.EditURLPattern,
	}, logger)
	settingsSvc := service.NewSettingsService(settingsRepo, cfg.DefaultManagerEmail, logger)
	complianceSvc := service.NewComplianceService(contentRepo, recordRepo, settingsSvc, cache, notifier, logger)
	reviewSvc := service.NewReviewService(settingsSvc, recordRepo, contentRepo, reviewRepo, notifier, cache, logger)
	bulkSvc := service.NewBulkService(recordRepo, bulkRepo, complianceSvc, logger)
	reportSvc := service.NewReportService(recordRepo, reviewRepo, bulkRepo, sweepStateRepo)
	sweepSvc := service.NewSweepService(
		settingsSvc, recordRepo, contentRepo, bulkRepo, sweepStateRepo,
		notifier, cache,
		cfg.SweepCheckInterval, cfg.BulkStaleAfter,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + Keycloak)
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.KeycloakCACertPath, cfg.KeycloakReadinessTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(pgChecker, kcChecker),
		handlers.Services{
			Settings:   settingsSvc,
			Compliance: complianceSvc,
			Sweep:      sweepSvc,
			Notifier:   notifier,
			Reviews:    reviewSvc,
			Bulk:       bulkSvc,
			Reports:    reportSvc,
		},
		logger,
	)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACertPath,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleEditorGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 10.1 Валидация запросов по OpenAPI-контракту
	var validator *middleware.RequestValidator
	if cfg.OpenAPIValidation {
		doc, err := openapi.Load(ctx)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		validator, err = middleware.NewRequestValidator(doc, logger)
		if err != nil {
			logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 11. Публичная форма проверки
	signer, err := auth.NewSigner(cfg.ReviewSigningSecret, cfg.ReviewAccessTTL, cfg.SecureCookies)
	if err != nil {
		logger.Error("Ошибка создания подписи токенов формы", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if signer.Ephemeral() {
		logger.Warn("CC_REVIEW_SIGNING_SECRET не задан, доступ к форме проверки не сохраняется между рестартами")
	}
	reviewHandler := uihandlers.NewReviewHandler(reviewSvc, signer, cfg.SiteName, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.ReviewRateLimit, cfg.ReviewRateWindow, logger)
	defer rateLimiter.Stop()

	// 12. Запуск фоновых задач
	sweepSvc.Start(ctx)

	// 12.1 topologymetrics: мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(pgDB, service.DephealthConfig{
		Group:           cfg.DephealthGroup,
		PgConnURL:       cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, reviewHandler, server.Middlewares{
		JWTAuth:     jwtAuth,
		Validator:   validator,
		RateLimiter: rateLimiter,
	})
	runErr := srv.Run()

	// 14. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}
	sweepSvc.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Compliance Service остановлен")
}
