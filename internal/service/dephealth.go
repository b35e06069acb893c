// dephealth.go: мониторинг зависимостей через topologymetrics SDK.
//
// Сервис мониторит две зависимости:
//   - PostgreSQL: SQL checker через существующий pgxpool (critical)
//   - Keycloak: HTTP checker к JWKS endpoint (critical)
//
// SMTP не мониторится: сервис продолжает работу без почты,
// ошибки отправки видны в cc_mail_sent_total{result="error"}.
//
// Метрики доступны на /metrics:
//   - app_dependency_health: состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds: задержка проверки
//   - app_dependency_status: категория статуса
//   - app_dependency_status_detail: детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthServiceID: имя вершины графа сервиса в метриках зависимостей.
const DephealthServiceID = "content-compliance"

// DephealthConfig: параметры мониторинга зависимостей.
type DephealthConfig struct {
	// Group: имя группы в метриках (CC_DEPHEALTH_GROUP)
	Group string
	// PgConnURL: URL PostgreSQL для лейблов метрик, не для подключения
	PgConnURL string
	// KeycloakJWKSURL: JWKS endpoint Keycloak
	KeycloakJWKSURL string
	// CheckInterval: интервал проверки (CC_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// Registerer: Prometheus registerer (при nil используется глобальный)
	Registerer prometheus.Registerer
}

// DephealthService: сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// db: *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool().
func NewDephealthService(db *sql.DB, cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(cfg.PgConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(cfg.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(jwksHealthPath(cfg.KeycloakJWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(true), // Dev-среда: self-signed сертификаты
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(DephealthServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// jwksHealthPath возвращает path JWKS URL для health check.
// /health у Keycloak доступен только на management-порту, поэтому
// проверяется сам JWKS endpoint.
func jwksHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + Keycloak)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключом служит имя зависимости, значение true означает состояние ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
