package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID: идентификатор ключа для тестов.
const testKeyID = "test-key-cc"

const testIssuer = "https://keycloak.test/realms/compliance"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	return NewJWTAuthWithKeyfunc(
		kf,
		testIssuer,
		[]string{"compliance-admins"},
		[]string{"compliance-editors"},
		testLogger(),
	)
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub, username, email string, roles, groups []string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"email":              email,
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(roles) > 0 {
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("claims не найдены в контексте")
		}
		if claims.Subject != "user-123" {
			t.Errorf("ожидался sub=user-123, получен %s", claims.Subject)
		}
		if claims.PreferredUsername != "editor" {
			t.Errorf("ожидался username=editor, получен %s", claims.PreferredUsername)
		}
		if claims.Role != "editor" {
			t.Errorf("ожидалась роль editor, получена %s", claims.Role)
		}
		if got := ActorFromContext(r.Context()); got != "editor@test.com" {
			t.Errorf("ActorFromContext = %q, ожидался email", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateUserToken(t, key, "user-123", "editor", "editor@test.com",
		nil, []string{"compliance-editors"}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"без префикса bearer", "token123"},
		{"пустой bearer", "Bearer "},
		{"мусор", "Bearer not-a-jwt"},
		{"просроченный", "Bearer " + generateUserToken(t, key, "u", "u", "u@test.com", nil, nil, true)},
		{"чужой ключ", "Bearer " + generateUserToken(t, otherKey, "u", "u", "u@test.com", nil, nil, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

func TestJWTAuth_RoleMapping(t *testing.T) {
	tests := []struct {
		name         string
		roles        []string
		groups       []string
		expectedRole string
	}{
		{"группа admin", nil, []string{"compliance-admins"}, "admin"},
		{"группа editor", nil, []string{"compliance-editors"}, "editor"},
		{"обе группы", nil, []string{"compliance-editors", "compliance-admins"}, "admin"},
		{"без групп", nil, nil, ""},
		{"неизвестная группа", nil, []string{"other-group"}, ""},
		{"realm-роль editor", []string{"offline_access", "editor"}, nil, "editor"},
		{"группа важнее realm-роли", []string{"admin"}, []string{"compliance-editors"}, "editor"},
	}

	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims := ClaimsFromContext(r.Context())
				if claims == nil {
					t.Fatal("claims не найдены")
				}
				if claims.Role != tt.expectedRole {
					t.Errorf("ожидалась роль %q, получена %q", tt.expectedRole, claims.Role)
				}
				w.WriteHeader(http.StatusOK)
			}))

			tokenStr := generateUserToken(t, key, "user-123", "user", "user@test.com",
				tt.roles, tt.groups, false)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
			req.Header.Set("Authorization", "Bearer "+tokenStr)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("ожидался статус 200, получен %d", rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *AuthClaims
		required   string
		wantStatus int
	}{
		{"admin на admin", &AuthClaims{Role: "admin"}, "admin", http.StatusOK},
		{"admin на editor", &AuthClaims{Role: "admin"}, "editor", http.StatusOK},
		{"editor на editor", &AuthClaims{Role: "editor"}, "editor", http.StatusOK},
		{"editor на admin", &AuthClaims{Role: "editor"}, "admin", http.StatusForbidden},
		{"без роли", &AuthClaims{}, "editor", http.StatusForbidden},
		{"без claims", nil, "editor", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			ctx := context.Background()
			if tt.claims != nil {
				ctx = context.WithValue(ctx, ContextKeyClaims, tt.claims)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("ожидался статус %d, получен %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestAuthClaimsActor(t *testing.T) {
	tests := []struct {
		claims AuthClaims
		want   string
	}{
		{AuthClaims{Subject: "s", PreferredUsername: "u", Email: "e@test.com"}, "e@test.com"},
		{AuthClaims{Subject: "s", PreferredUsername: "u"}, "u"},
		{AuthClaims{Subject: "s"}, "s"},
	}
	for _, tt := range tests {
		if got := tt.claims.Actor(); got != tt.want {
			t.Errorf("Actor() = %q, ожидался %q", got, tt.want)
		}
	}
	if got := ActorFromContext(context.Background()); got != "" {
		t.Errorf("ActorFromContext без claims = %q, ожидалась пустая строка", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantFail  bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
		{"Token abc", "", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		token, reason := bearerToken(req)
		if token != tt.wantToken || (reason != "") != tt.wantFail {
			t.Errorf("bearerToken(%q) = (%q, %q)", tt.header, token, reason)
		}
	}
}

func TestKeycloakHTTPClientBadCA(t *testing.T) {
	path := t.TempDir() + "/ca.pem"
	if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := keycloakHTTPClient(path, time.Second); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}
	if _, err := keycloakHTTPClient(path+".missing", time.Second); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}
}

func TestKeycloakReadinessChecker(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
	}{
		{"ключ подписи", http.StatusOK, `{"keys":[{"kid":"a","kty":"RSA","use":"sig"}]}`, "ok"},
		{"ключ без use", http.StatusOK, `{"keys":[{"kid":"a","kty":"RSA"}]}`, "ok"},
		{"только ключ шифрования", http.StatusOK, `{"keys":[{"kid":"a","kty":"RSA","use":"enc"}]}`, "degraded"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка сервера", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewKeycloakReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatalf("NewKeycloakReadinessChecker: %v", err)
			}
			status, _ := checker.CheckReady()
			if status != tt.wantStatus {
				t.Errorf("статус = %q, ожидался %q", status, tt.wantStatus)
			}
		})
	}
}
