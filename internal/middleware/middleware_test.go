package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "t_01",
		Scopes:   []string{ScopeChat},
	}
}

func TestAuth(t *testing.T) {
	var gotTenant, gotUser string
	var gotScope bool
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = GetTenantID(r.Context())
		gotUser = GetUserID(r.Context())
		gotScope = HasScope(r.Context(), ScopeChat)
		w.WriteHeader(http.StatusNoContent)
	}))

	noTenant := validClaims()
	noTenant.TenantID = ""

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + signToken(t, testSecret, validClaims()), http.StatusNoContent},
		{"lowercase scheme", "bearer " + signToken(t, testSecret, validClaims()), http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", validClaims()), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, expired), http.StatusUnauthorized},
		{"no tenant", "Bearer " + signToken(t, testSecret, noTenant), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, "t_01", gotTenant)
	assert.Equal(t, "user-1", gotUser)
	assert.True(t, gotScope)
}

func TestRequireScope(t *testing.T) {
	claims := validClaims()
	claims.Scopes = []string{"turns:read"}

	h := Auth(testSecret)(RequireScope(ScopeChat)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, claims))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoggingCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "corr-123", seen)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSessionRateLimit(t *testing.T) {
	h := SessionRateLimit(1, time.Minute, func(r *http.Request) string {
		return r.URL.Query().Get("s")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(session string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?s="+session, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, do("a").Code)
	limited := do("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("b").Code)
}

func TestValidateMessageText(t *testing.T) {
	assert.NoError(t, ValidateMessageText("Busco un depto en Palermo"))
	assert.Error(t, ValidateMessageText(""))
	assert.Error(t, ValidateMessageText("   \n"))
	assert.Error(t, ValidateMessageText(strings.Repeat("a", MaxMessageLength+1)))
	assert.Error(t, ValidateMessageText(string([]byte{0xff, 0xfe})))
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID(uuid.NewString()))
	assert.Error(t, ValidateSessionID("not-a-uuid"))
	assert.Error(t, ValidateSessionID(""))
}

func TestLoggingSeesAuthenticatedTenant(t *testing.T) {
	var outer *http.Request
	inner := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outer = r
		inner.ServeHTTP(w, r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, outer)
	assert.Equal(t, "t_01", GetTenantID(outer.Context()))
	assert.Equal(t, "user-1", GetUserID(outer.Context()))
}

func TestBearerToken(t *testing.T) {
	tok, err := bearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	_, err = bearerToken("")
	assert.ErrorIs(t, err, errMissingHeader)
	_, err = bearerToken("Bearer ")
	assert.ErrorIs(t, err, errHeaderFormat)
	_, err = bearerToken("Basic abc")
	assert.ErrorIs(t, err, errHeaderFormat)
}

func TestParseClaimsRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims())
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = parseClaims(signed, []byte(testSecret))
	assert.ErrorIs(t, err, errInvalidToken)
}
