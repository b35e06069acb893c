// auth.go: JWT middleware для аутентификации и авторизации admin API.
// Валидирует Keycloak JWT (RS256) через JWKS, извлекает claims,
// маппит группы IdP в роли admin/editor.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/signalfire/content-compliance/internal/api/errors"
	"github.com/signalfire/content-compliance/internal/domain/rbac"
)

// contextKey: тип для ключей контекста.
type contextKey string

// authFailures: отклонённые запросы admin API по причине.
var authFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cc_auth_failures_total",
		Help: "Admin API requests rejected by authentication",
	},
	[]string{"reason"},
)

const (
	// ContextKeyClaims: извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims: извлечённые и обработанные claims из Keycloak JWT.
type AuthClaims struct {
	// Subject: sub из JWT (Keycloak user ID).
	Subject string
	// PreferredUsername: preferred_username из JWT.
	PreferredUsername string
	// Email: email из JWT.
	Email string
	// Roles: роли из realm_access.roles.
	Roles []string
	// Groups: группы из JWT.
	Groups []string
	// Role: итоговая роль (admin, editor или "").
	Role string
}

// Actor возвращает идентификатор пользователя для журналов:
// email, иначе preferred_username, иначе sub.
func (c *AuthClaims) Actor() string {
	switch {
	case c.Email != "":
		return c.Email
	case c.PreferredUsername != "":
		return c.PreferredUsername
	}
	return c.Subject
}

// keycloakClaims: raw claims из Keycloak JWT.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
}

// realmAccess: вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth проверяет Keycloak JWT по ключам из JWKS.
type JWTAuth struct {
	jwks         keyfunc.Keyfunc
	logger       *slog.Logger
	adminGroups  []string
	editorGroups []string
	issuer       string
	jwtLeeway    time.Duration
}

// NewJWTAuth создаёт проверку токенов с периодически обновляемым JWKS.
// caCertPath (опционально) добавляет CA в пул доверия клиента JWKS.
// Группы adminGroups и editorGroups дают роли admin и editor.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	adminGroups, editorGroups []string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	client, err := keycloakHTTPClient(caCertPath, jwksClientTimeout)
	if err != nil {
		return nil, err
	}

	// Сервис стартует и при недоступном Keycloak: ключи подтянутся при обновлении.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("JWKS Keycloak не обновлён",
				slog.String("jwks_url", jwksURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("JWKS storage для %s: %w", jwksURL, err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("keyfunc для JWKS: %w", err)
	}

	j := NewJWTAuthWithKeyfunc(kf, issuer, adminGroups, editorGroups, logger)
	j.jwtLeeway = jwtLeeway
	return j, nil
}

// NewJWTAuthWithKeyfunc создаёт проверку токенов с готовой keyfunc
// (статический JWKS в тестах).
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	adminGroups, editorGroups []string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:         kf,
		logger:       logger.With(slog.String("component", "jwt_auth")),
		adminGroups:  adminGroups,
		editorGroups: editorGroups,
		issuer:       issuer,
	}
}

// Middleware возвращает HTTP middleware аутентификации admin API.
// Запрос без валидного Bearer token получает 401, claims с вычисленной
// ролью помещаются в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, reason := bearerToken(r)
			if reason != "" {
				authFailures.WithLabelValues("header").Inc()
				apierrors.Unauthorized(w, reason)
				return
			}

			claims, err := j.authenticate(r.Context(), tokenString)
			if err != nil {
				authFailures.WithLabelValues("token").Inc()
				j.logger.Debug("Токен admin API отклонён",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization.
// Непустой reason: описание ошибки для ответа 401.
func bearerToken(r *http.Request) (token, reason string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Отсутствует заголовок Authorization"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "Пустой Bearer token"
	}
	return token, ""
}

// authenticate проверяет подпись RS256, срок действия и issuer токена.
func (j *JWTAuth) authenticate(ctx context.Context, tokenString string) (*AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	raw := &keycloakClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(ctx), opts...); err != nil {
		return nil, err
	}
	if raw.Subject == "" {
		return nil, errors.New("в токене нет sub")
	}
	return j.buildAuthClaims(raw), nil
}

// buildAuthClaims формирует AuthClaims из raw Keycloak claims.
// Роль определяется по группам, а если группы не совпали, то по realm_access.roles.
func (j *JWTAuth) buildAuthClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
		Groups:            raw.Groups,
	}
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}

	claims.Role = rbac.MapGroupsToRole(claims.Groups, j.adminGroups, j.editorGroups)
	if claims.Role == "" && len(claims.Roles) > 0 {
		var mapped []string
		for _, r := range claims.Roles {
			if rbac.IsValidRole(r) {
				mapped = append(mapped, r)
			}
		}
		claims.Role = rbac.HighestRole(mapped)
	}
	return claims
}

// RequireRole возвращает middleware, требующий роль не ниже required.
// Admin проходит проверку на editor.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !rbac.Satisfies(claims.Role, required) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", required))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// ActorFromContext возвращает идентификатор пользователя для журналов.
// Возвращает пустую строку, если claims не найдены.
func ActorFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Actor()
}
