package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken marks a token that fails cryptographic or structural
	// validation. Reported generically to clients.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is distinguished from ErrInvalidToken so the HTTP layer
	// can tell callers to rotate instead of re-authenticating.
	ErrTokenExpired = errors.New("token expired")
)

// TokenService mints and validates access tokens and refresh token material.
// Access tokens are stateless JWTs; refresh tokens are opaque secrets whose
// salted fingerprint is the only thing ever persisted.
type TokenService struct {
	jwtSecret       []byte
	fingerprintSalt []byte
	accessTTL       time.Duration
}

// NewTokenService creates a token service. Both secrets are required.
func NewTokenService(jwtSecret, fingerprintSalt string, accessTTL time.Duration) (*TokenService, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	if fingerprintSalt == "" {
		return nil, fmt.Errorf("refresh fingerprint salt not configured")
	}
	return &TokenService{
		jwtSecret:       []byte(jwtSecret),
		fingerprintSalt: []byte(fingerprintSalt),
		accessTTL:       accessTTL,
	}, nil
}

type accessClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// MintAccessToken creates a short-lived stateless access token for a user.
func (s *TokenService) MintAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		TokenType: "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyAccessToken validates an access token locally, with no store lookup.
// Expired tokens return ErrTokenExpired; everything else invalid returns
// ErrInvalidToken.
func (s *TokenService) VerifyAccessToken(tokenStr string) (string, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != "access" || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// RefreshToken is the raw material handed to the client. Only Fingerprint is
// persisted.
type RefreshToken struct {
	SessionID   string
	Secret      string
	Fingerprint string
}

// Token renders the client-facing token string.
func (t *RefreshToken) Token() string {
	return t.SessionID + "." + t.Secret
}

// MintRefreshToken generates fresh high-entropy refresh token material for a
// session lineage.
func (s *TokenService) MintRefreshToken(sessionID string) (*RefreshToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return &RefreshToken{
		SessionID:   sessionID,
		Secret:      secret,
		Fingerprint: s.Fingerprint(secret),
	}, nil
}

// ParseRefreshToken splits a presented token into its session id and the
// fingerprint of its secret. Malformed tokens return ErrInvalidToken.
func (s *TokenService) ParseRefreshToken(tokenStr string) (sessionID, fingerprint string, err error) {
	sessionID, secret, ok := strings.Cut(tokenStr, ".")
	if !ok || sessionID == "" || secret == "" {
		return "", "", ErrInvalidToken
	}
	return sessionID, s.Fingerprint(secret), nil
}

// Fingerprint computes the salted hash persisted for a refresh token secret.
func (s *TokenService) Fingerprint(secret string) string {
	mac := hmac.New(sha256.New, s.fingerprintSalt)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
