package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/sparkfeed/internal/auth"
)

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// access token and stores the token's viewer id in the request context.
// metrics may be nil.
func RequireAuth(validator TokenValidator, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				rejectAuth(w, r, metrics, "missing", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					rejectAuth(w, r, metrics, "expired", "Token has expired")
					return
				}
				rejectAuth(w, r, metrics, "invalid", "Invalid token")
				return
			}

			ctx := SetViewerID(r.Context(), claims.ViewerID())
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectAuth(w http.ResponseWriter, r *http.Request, metrics *Metrics, reason, message string) {
	if metrics != nil {
		metrics.IncAuthFailures(reason)
	}
	UpdateResponseContext(w, SetErrorCode(r.Context(), "auth_failed"))
	w.Header().Set("WWW-Authenticate", `Bearer realm="sparkfeed"`)
	writeJSONError(w, http.StatusUnauthorized, "auth_failed", message)
}
