// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClaimsKey is the context key for the verified JWT claims.
	ClaimsKey ContextKey = "claims"
	// identityKey holds the *identity shared with the logging middleware.
	identityKey ContextKey = "identity"
)

// ScopeChat allows a caller to open and talk to agent sessions.
const ScopeChat = "agent:chat"

var (
	errMissingHeader = errors.New("missing authorization header")
	errHeaderFormat  = errors.New("invalid authorization header format")
	errInvalidToken  = errors.New("invalid token")
	errNoTenant      = errors.New("token carries no valid tenant")
)

// Claims represents JWT claims. The tenant is taken from the token only;
// request bodies never choose it.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scope"`
}

// identity is filled in by Auth so that outer middleware can see who made
// the request after the handler chain returns.
type identity struct {
	tenantID string
	userID   string
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errHeaderFormat
	}
	return token, nil
}

// parseClaims verifies an HS256 token and its tenant claim.
func parseClaims(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, errInvalidToken
	}
	if err := ValidateTenantID(claims.TenantID); err != nil {
		return nil, errNoTenant
	}
	return claims, nil
}

// Auth creates JWT authentication middleware.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}

			claims, err := parseClaims(token, secret)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}

			if id, ok := r.Context().Value(identityKey).(*identity); ok {
				id.tenantID = claims.TenantID
				id.userID = claims.Subject
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + err.Error() + `"}`))
}

// GetClaims returns the verified claims, or nil for unauthenticated
// requests.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	if id, ok := ctx.Value(identityKey).(*identity); ok {
		return id.userID
	}
	return ""
}

// GetTenantID gets tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.TenantID
	}
	if id, ok := ctx.Value(identityKey).(*identity); ok {
		return id.tenantID
	}
	return ""
}

// HasScope checks if the context has a specific scope.
func HasScope(ctx context.Context, scope string) bool {
	c := GetClaims(ctx)
	return c != nil && slices.Contains(c.Scopes, scope)
}

// RequireScope creates middleware that requires a specific scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				writeAuthError(w, http.StatusForbidden, errors.New("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
