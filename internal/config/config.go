// Пакет config: загрузка и валидация конфигурации Compliance Service
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Compliance Service.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле (при 0 используется значение pgxpool по умолчанию)
	DBMaxConns int
	// Сколько ждать PostgreSQL при старте
	DBConnectTimeout time.Duration

	// --- Keycloak / JWT ---

	// URL Keycloak (например, https://keycloak.example.com)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	KeycloakCACertPath string
	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration

	// --- Маппинг групп → ролей ---

	// Группы Keycloak, дающие роль admin
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль editor
	RoleEditorGroups []string

	// --- Публичные ссылки ---

	// Базовый URL сервиса для ссылок проверки (без trailing slash)
	PublicBaseURL string
	// Название сайта для писем ({site_name})
	SiteName string
	// Шаблон ссылки редактирования контента, {id} заменяется на ID
	EditURLPattern string

	// --- Почта (SMTP) ---

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	// Адрес отправителя писем
	MailFrom string
	// Email менеджера по умолчанию (для начальных настроек)
	DefaultManagerEmail string

	// --- Проверка соответствия ---

	// Как часто фоновая горутина проверяет, пора ли запускать sweep
	SweepCheckInterval time.Duration
	// Через сколько без прогресса bulk-операция считается брошенной
	BulkStaleAfter time.Duration
	// TTL кэша записей соответствия
	CacheTTL time.Duration
	// Максимальный размер кэша записей соответствия
	CacheSize int

	// --- Публичная форма проверки ---

	// Секрет подписи capability- и CSRF-токенов (HS256)
	ReviewSigningSecret string
	// Время жизни доступа после ввода пароля
	ReviewAccessTTL time.Duration
	// Лимит запросов к /review/ с одного IP за окно
	ReviewRateLimit int
	// Окно лимита запросов
	ReviewRateWindow time.Duration
	// Secure-флаг cookie (авто: true при https PublicBaseURL)
	SecureCookies bool

	// --- OpenAPI ---

	// Валидация входящих запросов admin API по встроенному OpenAPI-контракту
	OpenAPIValidation bool

	// --- topologymetrics ---

	// Группа в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CC_PORT: порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CC_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("CC_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("CC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CC_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("CC_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("CC_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("CC_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("CC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns, err = getEnvInt("CC_DB_MAX_CONNS", 10); err != nil {
		return nil, fmt.Errorf("CC_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("CC_DB_MAX_CONNS: должно быть не меньше 1")
	}
	if cfg.DBConnectTimeout, err = getEnvDuration("CC_DB_CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CC_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Keycloak / JWT ---

	if cfg.KeycloakURL, err = getEnvRequired("CC_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.KeycloakRealm = getEnvDefault("CC_KEYCLOAK_REALM", "content")
	cfg.KeycloakCACertPath = getEnvDefault("CC_KEYCLOAK_CA_CERT_PATH", "")

	cfg.JWTIssuer = getEnvDefault("CC_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("CC_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	if cfg.JWKSClientTimeout, err = getEnvDuration("CC_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CC_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("CC_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("CC_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("CC_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CC_JWT_LEEWAY: %w", err)
	}
	if cfg.KeycloakReadinessTimeout, err = getEnvDuration("CC_KEYCLOAK_READINESS_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CC_KEYCLOAK_READINESS_TIMEOUT: %w", err)
	}

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("CC_ROLE_ADMIN_GROUPS", "content-admins"))
	cfg.RoleEditorGroups = parseCSV(getEnvDefault("CC_ROLE_EDITOR_GROUPS", "content-editors"))

	// --- Публичные ссылки ---

	if cfg.PublicBaseURL, err = getEnvRequired("CC_PUBLIC_BASE_URL"); err != nil {
		return nil, err
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	baseURL, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
		return nil, fmt.Errorf("CC_PUBLIC_BASE_URL: ожидается абсолютный http(s) URL, получено %q", cfg.PublicBaseURL)
	}
	cfg.SiteName = getEnvDefault("CC_SITE_NAME", baseURL.Host)
	cfg.EditURLPattern = getEnvDefault("CC_EDIT_URL_PATTERN", cfg.PublicBaseURL+"/admin/content/{id}/edit")

	// --- Почта ---

	if cfg.SMTPHost, err = getEnvRequired("CC_SMTP_HOST"); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getEnvInt("CC_SMTP_PORT", 587); err != nil {
		return nil, fmt.Errorf("CC_SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("CC_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("CC_SMTP_PASSWORD", "")

	if cfg.MailFrom, err = getEnvRequired("CC_MAIL_FROM"); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(cfg.MailFrom); err != nil {
		return nil, fmt.Errorf("CC_MAIL_FROM: некорректный адрес %q", cfg.MailFrom)
	}
	cfg.DefaultManagerEmail = getEnvDefault("CC_DEFAULT_MANAGER_EMAIL", "")

	// --- Проверка соответствия ---

	if cfg.SweepCheckInterval, err = getEnvDuration("CC_SWEEP_CHECK_INTERVAL", time.Hour); err != nil {
		return nil, fmt.Errorf("CC_SWEEP_CHECK_INTERVAL: %w", err)
	}
	if cfg.BulkStaleAfter, err = getEnvDuration("CC_BULK_STALE_AFTER", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("CC_BULK_STALE_AFTER: %w", err)
	}
	if cfg.CacheTTL, err = getEnvDuration("CC_CACHE_TTL", 12*time.Hour); err != nil {
		return nil, fmt.Errorf("CC_CACHE_TTL: %w", err)
	}
	if cfg.CacheSize, err = getEnvInt("CC_CACHE_SIZE", 10000); err != nil {
		return nil, fmt.Errorf("CC_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("CC_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}

	// --- Публичная форма проверки ---

	cfg.ReviewSigningSecret = getEnvDefault("CC_REVIEW_SIGNING_SECRET", "")
	if cfg.ReviewSigningSecret != "" && len(cfg.ReviewSigningSecret) < 32 {
		return nil, fmt.Errorf("CC_REVIEW_SIGNING_SECRET: минимальная длина 32 символа")
	}
	if cfg.ReviewAccessTTL, err = getEnvDuration("CC_REVIEW_ACCESS_TTL", 12*time.Hour); err != nil {
		return nil, fmt.Errorf("CC_REVIEW_ACCESS_TTL: %w", err)
	}
	if cfg.ReviewRateLimit, err = getEnvInt("CC_REVIEW_RATE_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("CC_REVIEW_RATE_LIMIT: %w", err)
	}
	if cfg.ReviewRateWindow, err = getEnvDuration("CC_REVIEW_RATE_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("CC_REVIEW_RATE_WINDOW: %w", err)
	}
	if cfg.SecureCookies, err = getEnvBool("CC_SECURE_COOKIES", baseURL.Scheme == "https"); err != nil {
		return nil, fmt.Errorf("CC_SECURE_COOKIES: %w", err)
	}

	if cfg.OpenAPIValidation, err = getEnvBool("CC_OPENAPI_VALIDATION", true); err != nil {
		return nil, fmt.Errorf("CC_OPENAPI_VALIDATION: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CC_DEPHEALTH_GROUP", "content-compliance")
	if cfg.DephealthCheckInterval, err = getEnvDuration("CC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	if cfg.ShutdownTimeout, err = getEnvDuration("CC_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (postgres://…) без пароля.
// Используется для лейблов dephealth.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
