// Пакет auth: подписанные токены публичной формы проверки.
// Токен доступа (после ввода пароля) хранится в HttpOnly cookie,
// CSRF-токен передаётся скрытым полем формы. Оба токена являются HS256 JWT,
// привязанными к токену ссылки через sub.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AudienceAccess: aud токена доступа к форме.
	AudienceAccess = "review-access"
	// AudienceCSRF: aud CSRF-токена формы.
	AudienceCSRF = "review-csrf"

	// CSRFTTL: время жизни CSRF-токена.
	CSRFTTL = 2 * time.Hour

	// AccessCookieName: имя cookie с токеном доступа.
	AccessCookieName = "cc_review_access"
)

// ErrInvalidToken: токен не прошёл проверку (подпись, aud, sub или срок).
var ErrInvalidToken = errors.New("невалидный токен формы")

// Signer выпускает и проверяет токены формы проверки.
type Signer struct {
	key       []byte
	accessTTL time.Duration
	secure    bool
	ephemeral bool
	now       func() time.Time
}

// NewSigner создаёт Signer.
// Если secret пустой, генерируется случайный ключ (непостоянный между
// рестартами: после рестарта пароль придётся ввести заново).
func NewSigner(secret string, accessTTL time.Duration, secure bool) (*Signer, error) {
	s := &Signer{
		accessTTL: accessTTL,
		secure:    secure,
		now:       time.Now,
	}
	if secret == "" {
		s.key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, s.key); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа подписи: %w", err)
		}
		s.ephemeral = true
		return s, nil
	}
	s.key = []byte(secret)
	return s, nil
}

// Ephemeral возвращает true, если ключ сгенерирован при старте.
func (s *Signer) Ephemeral() bool {
	return s.ephemeral
}

// IssueCSRF выпускает CSRF-токен для формы ссылки reviewToken.
func (s *Signer) IssueCSRF(reviewToken string) (string, error) {
	return s.issue(reviewToken, AudienceCSRF, CSRFTTL)
}

// VerifyCSRF проверяет CSRF-токен формы ссылки reviewToken.
func (s *Signer) VerifyCSRF(reviewToken, value string) error {
	return s.verify(reviewToken, AudienceCSRF, value)
}

// IssueAccess выпускает токен доступа к форме ссылки reviewToken.
func (s *Signer) IssueAccess(reviewToken string) (string, error) {
	return s.issue(reviewToken, AudienceAccess, s.accessTTL)
}

// VerifyAccess проверяет токен доступа к форме ссылки reviewToken.
func (s *Signer) VerifyAccess(reviewToken, value string) error {
	return s.verify(reviewToken, AudienceAccess, value)
}

// SetAccessCookie выпускает токен доступа и ставит его в cookie,
// ограниченный путём формы /review/{token}/.
func (s *Signer) SetAccessCookie(w http.ResponseWriter, reviewToken string) error {
	value, err := s.IssueAccess(reviewToken)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    value,
		Path:     CookiePath(reviewToken),
		MaxAge:   int(s.accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// HasAccess проверяет cookie доступа в запросе.
func (s *Signer) HasAccess(r *http.Request, reviewToken string) bool {
	cookie, err := r.Cookie(AccessCookieName)
	if err != nil {
		return false
	}
	return s.VerifyAccess(reviewToken, cookie.Value) == nil
}

// CookiePath возвращает путь cookie доступа для ссылки reviewToken.
func CookiePath(reviewToken string) string {
	return "/review/" + reviewToken + "/"
}

func (s *Signer) issue(reviewToken, audience string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   reviewToken,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

func (s *Signer) verify(reviewToken, audience, value string) error {
	if value == "" {
		return ErrInvalidToken
	}
	_, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithSubject(reviewToken),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
