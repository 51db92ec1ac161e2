package githubapp

import (
	"crypto/rsa"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"gitplumbers.app/bridge/internal/apperr"
)

const (
	// assertionBackdate tolerates clock skew between us and GitHub.
	assertionBackdate = 60 * time.Second
	assertionLifetime = 10 * time.Minute
)

// Minter signs RS256 app assertions. It performs no I/O.
type Minter struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewMinter validates and parses the app credentials. It returns a
// ConfigurationError when the app id or key is empty after normalization
// and a SigningError when the key is not a usable RSA private key.
func NewMinter(cfg Config) (*Minter, error) {
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, &apperr.ConfigurationError{Setting: "GITHUB_APP_ID", Reason: "is empty"}
	}

	pemKey := NormalizePrivateKey(cfg.PrivateKey)
	if pemKey == "" {
		return nil, &apperr.ConfigurationError{Setting: "GITHUB_APP_PRIVATE_KEY", Reason: "is empty"}
	}

	// ParseRSAPrivateKeyFromPEM accepts PKCS#1 and falls back to PKCS#8.
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, &apperr.SigningError{Err: err}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Minter{appID: appID, key: key, now: now}, nil
}

// AppID returns the issuer placed in every assertion.
func (m *Minter) AppID() string {
	return m.appID
}

// Mint returns a signed assertion valid from one minute ago until ten
// minutes from now.
func (m *Minter) Mint() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", &apperr.SigningError{Err: err}
	}
	return signed, nil
}
