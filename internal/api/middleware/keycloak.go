// keycloak.go: HTTP-клиент к Keycloak и проверка готовности JWKS.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// keycloakHTTPClient возвращает клиент с таймаутом. Если задан caCertPath,
// CA добавляется к системному пулу доверия.
func keycloakHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath == "" {
		return client, nil
	}

	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата %s: %w", caCertPath, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-сертификатов", caCertPath)
	}

	client.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
	}
	return client, nil
}

// jwksDocument: ключи JWKS, нужные для проверки готовности.
type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
	} `json:"keys"`
}

// signingKeys возвращает число RSA-ключей подписи.
func (d jwksDocument) signingKeys() int {
	n := 0
	for _, k := range d.Keys {
		if k.Kty == "RSA" && (k.Use == "" || k.Use == "sig") {
			n++
		}
	}
	return n
}

// KeycloakReadinessChecker: готовность Keycloak: JWKS отвечает
// и содержит RSA-ключи подписи для токенов admin API.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewKeycloakReadinessChecker создаёт проверку готовности Keycloak.
func NewKeycloakReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*KeycloakReadinessChecker, error) {
	client, err := keycloakHTTPClient(caCertPath, timeout)
	if err != nil {
		return nil, err
	}
	return &KeycloakReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

// CheckReady возвращает fail, если JWKS недоступен, и degraded, если в нём нет ключей подписи.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return "fail", fmt.Sprintf("некорректный JWKS URL: %v", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("Keycloak JWKS: HTTP %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: ответ не разобран: %v", err)
	}
	if n := doc.signingKeys(); n > 0 {
		return "ok", fmt.Sprintf("ключей подписи RSA: %d", n)
	}
	return "degraded", "Keycloak JWKS: нет RSA-ключей подписи"
}
