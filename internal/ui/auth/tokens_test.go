package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	reviewTokenA = "0f8e4c1a-1b2c-4d5e-8f90-123456789abc"
	reviewTokenB = "1a2b3c4d-1b2c-4d5e-8f90-123456789abc"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("0123456789abcdef0123456789abcdef", 12*time.Hour, true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestCSRFToken(t *testing.T) {
	s := newTestSigner(t)

	csrf, err := s.IssueCSRF(reviewTokenA)
	if err != nil {
		t.Fatalf("IssueCSRF: %v", err)
	}
	access, err := s.IssueAccess(reviewTokenA)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	other, err := NewSigner("другой-секрет-другой-секрет-другой", time.Hour, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	foreign, _ := other.IssueCSRF(reviewTokenA)

	tests := []struct {
		name    string
		token   string
		value   string
		wantErr bool
	}{
		{"валидный", reviewTokenA, csrf, false},
		{"другая ссылка", reviewTokenB, csrf, true},
		{"токен доступа вместо CSRF", reviewTokenA, access, true},
		{"чужой ключ", reviewTokenA, foreign, true},
		{"пустой", reviewTokenA, "", true},
		{"мусор", reviewTokenA, "abc.def.ghi", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.VerifyCSRF(tt.token, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyCSRF() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ожидалась ErrInvalidToken, получена %v", err)
			}
		})
	}
}

func TestCSRFTokenExpires(t *testing.T) {
	s := newTestSigner(t)
	base := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	csrf, err := s.IssueCSRF(reviewTokenA)
	if err != nil {
		t.Fatalf("IssueCSRF: %v", err)
	}

	s.now = func() time.Time { return base.Add(CSRFTTL - time.Minute) }
	if err := s.VerifyCSRF(reviewTokenA, csrf); err != nil {
		t.Errorf("токен должен быть валиден до истечения: %v", err)
	}
	s.now = func() time.Time { return base.Add(CSRFTTL + time.Minute) }
	if err := s.VerifyCSRF(reviewTokenA, csrf); err == nil {
		t.Error("просроченный токен должен отклоняться")
	}
}

func TestAccessCookie(t *testing.T) {
	s := newTestSigner(t)

	rec := httptest.NewRecorder()
	if err := s.SetAccessCookie(rec, reviewTokenA); err != nil {
		t.Fatalf("SetAccessCookie: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, ожидался 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != AccessCookieName || c.Path != "/review/"+reviewTokenA+"/" {
		t.Errorf("cookie = %s path=%s", c.Name, c.Path)
	}
	if !c.HttpOnly || !c.Secure {
		t.Error("cookie должен быть HttpOnly и Secure")
	}
	if c.MaxAge != int((12 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d", c.MaxAge)
	}

	req := httptest.NewRequest(http.MethodGet, CookiePath(reviewTokenA), nil)
	req.AddCookie(c)
	if !s.HasAccess(req, reviewTokenA) {
		t.Error("ожидался доступ по cookie")
	}
	if s.HasAccess(req, reviewTokenB) {
		t.Error("cookie не должен давать доступ к другой ссылке")
	}
	if s.HasAccess(httptest.NewRequest(http.MethodGet, "/", nil), reviewTokenA) {
		t.Error("без cookie доступа быть не должно")
	}
}

func TestEphemeralSigner(t *testing.T) {
	s, err := NewSigner("", time.Hour, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if !s.Ephemeral() {
		t.Error("без секрета ключ должен быть сгенерирован")
	}
	v, err := s.IssueAccess(reviewTokenA)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if err := s.VerifyAccess(reviewTokenA, v); err != nil {
		t.Errorf("VerifyAccess: %v", err)
	}
}
