package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity extracted from a verified token.
type Claims struct {
	Subject  string
	Email    string
	Name     string
	Nickname string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
	// RequiresToken reports whether a request without a token must be rejected.
	RequiresToken() bool
}

// JWKSVerifier validates RS256 tokens issued by an Auth0 tenant against the
// tenant's published signing certificates.
type JWKSVerifier struct {
	issuer   string
	audience string
	jwksURL  string
	client   *http.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	certs     map[string]string
	fetchedAt time.Time
}

func NewJWKSVerifier(domain, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		issuer:   fmt.Sprintf("https://%s/", domain),
		audience: audience,
		jwksURL:  fmt.Sprintf("https://%s/.well-known/jwks.json", domain),
		client:   &http.Client{Timeout: 5 * time.Second},
		cacheTTL: time.Hour,
	}
}

func (v *JWKSVerifier) RequiresToken() bool { return true }

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		cert, err := v.pemCert(ctx, kid)
		if err != nil {
			return nil, err
		}
		return jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}
	return claimsFromMap(claims), nil
}

func claimsFromMap(m jwt.MapClaims) *Claims {
	c := &Claims{}
	c.Subject, _ = m["sub"].(string)
	c.Email, _ = m["email"].(string)
	c.Name, _ = m["name"].(string)
	c.Nickname, _ = m["nickname"].(string)
	return c
}

// pemCert returns the certificate for kid, refreshing the key set when the
// kid is unknown or the cached copy is stale.
func (v *JWKSVerifier) pemCert(ctx context.Context, kid string) (string, error) {
	v.mu.RLock()
	cert, ok := v.certs[kid]
	fresh := time.Since(v.fetchedAt) < v.cacheTTL
	v.mu.RUnlock()
	if ok && fresh {
		return cert, nil
	}

	certs, err := v.fetchCerts(ctx)
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	v.certs = certs
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	cert, ok = certs[kid]
	if !ok {
		return "", errors.New("unable to find appropriate key")
	}
	return cert, nil
}

func (v *JWKSVerifier) fetchCerts(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWKS: status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string   `json:"kid"`
			X5c []string `json:"x5c"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	certs := make(map[string]string, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if len(k.X5c) == 0 {
			continue
		}
		certs[k.Kid] = "-----BEGIN CERTIFICATE-----\n" + k.X5c[0] + "\n-----END CERTIFICATE-----"
	}
	return certs, nil
}

// DevVerifier accepts every request as a fixed local identity. A bearer value,
// when present, is used as the subject so several local users can be simulated.
type DevVerifier struct {
	Subject string
}

func (d DevVerifier) RequiresToken() bool { return false }

func (d DevVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	subject := strings.TrimSpace(token)
	if subject == "" {
		subject = d.Subject
	}
	return &Claims{Subject: subject, Name: "Local Developer", Nickname: "dev"}, nil
}
