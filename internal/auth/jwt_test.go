package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 44-character base64 string, as produced by `openssl rand -base64 32`
const testSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func newService(t *testing.T, cfg Config) *TokenService {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	svc, err := NewTokenService(cfg)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func TestNewTokenService_MissingSecret(t *testing.T) {
	if _, err := NewTokenService(Config{}); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("error = %v, want ErrMissingSecret", err)
	}
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService(t, Config{Issuer: "sparkfeed"})

	token, err := svc.IssueAccessToken("viewer-123")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.ViewerID() != "viewer-123" {
		t.Errorf("ViewerID = %q, want viewer-123", claims.ViewerID())
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("Type = %q, want %q", claims.Type, TokenTypeAccess)
	}
	if claims.Issuer != "sparkfeed" {
		t.Errorf("Issuer = %q, want sparkfeed", claims.Issuer)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != DefaultAccessTokenTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultAccessTokenTTL)
	}
}

func TestIssueAccessToken_EmptyViewer(t *testing.T) {
	svc := newService(t, Config{})
	if _, err := svc.IssueAccessToken(""); !errors.Is(err, ErrEmptyViewerID) {
		t.Errorf("error = %v, want ErrEmptyViewerID", err)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	svc := newService(t, Config{AccessTTL: time.Minute, Leeway: time.Second})
	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.IssueAccessToken("viewer-1")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateAccessToken_Leeway(t *testing.T) {
	svc := newService(t, Config{AccessTTL: time.Minute, Leeway: time.Minute})
	issuedAt := time.Now().Add(-90 * time.Second)
	svc.now = func() time.Time { return issuedAt }
	token, _ := svc.IssueAccessToken("viewer-1")

	// Expired 30s ago, inside the one-minute leeway.
	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(token); err != nil {
		t.Errorf("expected token within leeway to validate, got %v", err)
	}
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	svc := newService(t, Config{Issuer: "sparkfeed"})
	valid, _ := svc.IssueAccessToken("viewer-1")

	other := newService(t, Config{Secret: "some-other-secret-value-000000"})
	wrongKey, _ := other.IssueAccessToken("viewer-1")

	wrongIssuer, _ := newService(t, Config{Issuer: "elsewhere"}).IssueAccessToken("viewer-1")

	refresh := signClaims(t, testSecret, jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer-1",
			Issuer:    "sparkfeed",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: "refresh",
	})
	noSubject := signClaims(t, testSecret, jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sparkfeed",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	})
	hs512 := signClaims(t, testSecret, jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer-1",
			Issuer:    "sparkfeed",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	})

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", valid[:len(valid)-4] + "AAAA"},
		{"wrong key", wrongKey},
		{"wrong issuer", wrongIssuer},
		{"refresh token", refresh},
		{"missing subject", noSubject},
		{"unexpected algorithm", hs512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateAccessToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestKeyRotation(t *testing.T) {
	const current = "current-secret-key-12345678"
	const previous = "previous-secret-key-87654321"

	oldSvc := newService(t, Config{Secret: previous})
	rotated := newService(t, Config{Secret: current, PreviousSecret: previous})

	t.Run("previous secret still validates", func(t *testing.T) {
		token, _ := oldSvc.IssueAccessToken("viewer-old")
		claims, err := rotated.ValidateAccessToken(token)
		if err != nil {
			t.Fatalf("ValidateAccessToken() error = %v", err)
		}
		if claims.ViewerID() != "viewer-old" {
			t.Errorf("ViewerID = %q, want viewer-old", claims.ViewerID())
		}
	})

	t.Run("new tokens use current secret", func(t *testing.T) {
		token, _ := rotated.IssueAccessToken("viewer-new")
		if _, err := newService(t, Config{Secret: current}).ValidateAccessToken(token); err != nil {
			t.Errorf("current-only service rejected token: %v", err)
		}
		if _, err := oldSvc.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("previous-only service error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired under previous secret", func(t *testing.T) {
		expiredSvc := newService(t, Config{Secret: previous, AccessTTL: time.Minute, Leeway: time.Second})
		expiredSvc.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _ := expiredSvc.IssueAccessToken("viewer-old")

		if _, err := rotated.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("error = %v, want ErrExpiredToken", err)
		}
	})
}

func signClaims(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}
