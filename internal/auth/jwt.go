// Package auth validates viewer access tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the typ claim of tokens accepted by the feed API.
const TokenTypeAccess = "access"

// Defaults for Config.
const (
	DefaultAccessTokenTTL = 15 * time.Minute
	DefaultLeeway         = 30 * time.Second
)

// Token errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrEmptyViewerID = errors.New("viewer id cannot be empty")
	ErrMissingSecret = errors.New("jwt secret is required")
)

// Claims are the JWT claims carried by a viewer access token.
// The viewer id is the registered subject.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// ViewerID returns the token subject.
func (c *Claims) ViewerID() string {
	return c.Subject
}

// Config configures a TokenService.
type Config struct {
	// Secret signs new tokens and validates incoming ones.
	Secret string
	// PreviousSecret, when set, is still accepted for validation during a key rotation.
	PreviousSecret string
	// Issuer is stamped on new tokens and, when set, required on incoming ones.
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

// TokenService issues and validates HS256 access tokens with dual-key rotation.
type TokenService struct {
	keys      [][]byte
	issuer    string
	accessTTL time.Duration
	leeway    time.Duration
	now       func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	svc := &TokenService{
		keys:      [][]byte{[]byte(cfg.Secret)},
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		leeway:    cfg.Leeway,
		now:       time.Now,
	}
	if cfg.PreviousSecret != "" {
		svc.keys = append(svc.keys, []byte(cfg.PreviousSecret))
	}
	if svc.accessTTL <= 0 {
		svc.accessTTL = DefaultAccessTokenTTL
	}
	if svc.leeway <= 0 {
		svc.leeway = DefaultLeeway
	}
	return svc, nil
}

// IssueAccessToken signs an access token for viewerID with the current secret.
func (s *TokenService) IssueAccessToken(viewerID string) (string, error) {
	if viewerID == "" {
		return "", ErrEmptyViewerID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewerID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Type: TokenTypeAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, expiry, issuer and token type.
// Each configured secret is tried in order.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(s.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var lastErr error
	for _, key := range s.keys {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, opts...)
		if err != nil {
			lastErr = err
			// Expiry is only meaningful once the signature verified.
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			continue
		}
		if !token.Valid || claims.Type != TokenTypeAccess || claims.Subject == "" {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}
