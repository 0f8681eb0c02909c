package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type jwtStub string

func (s jwtStub) GetJWTAccessSecret() string { return string(s) }

func signToken(t *testing.T, secret, tokenType string, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  tokenType,
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newProtectedEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin/ping", AuthRequired(jwtStub(secret)), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func getWithToken(engine *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	engine := newProtectedEngine("access-secret")

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"foreign secret", signToken(t, "other-secret", "access", []string{"admin"})},
		{"refresh token on access endpoint", signToken(t, "access-secret", "refresh", []string{"admin"})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := getWithToken(engine, tc.token); rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireRoleGatesAdminSurface(t *testing.T) {
	engine := newProtectedEngine("access-secret")

	rec := getWithToken(engine, signToken(t, "access-secret", "access", []string{"admin"}))
	if rec.Code != http.StatusOK {
		t.Errorf("admin role: status = %d, want 200", rec.Code)
	}

	rec = getWithToken(engine, signToken(t, "access-secret", "access", []string{"viewer"}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("viewer role: status = %d, want 403", rec.Code)
	}

	rec = getWithToken(engine, signToken(t, "access-secret", "access", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("no roles: status = %d, want 403", rec.Code)
	}
}

func TestIPRateLimitRejectsBurstOverflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, nil)
	engine := gin.New()
	engine.Use(limiter.RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("198.51.100.7:1000"); code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", code)
	}
	if code := do("198.51.100.7:1000"); code != http.StatusOK {
		t.Fatalf("second request: status = %d, want 200", code)
	}
	if code := do("198.51.100.7:1000"); code != http.StatusTooManyRequests {
		t.Errorf("over burst: status = %d, want 429", code)
	}

	// Another client is tracked independently.
	if code := do("203.0.113.9:1000"); code != http.StatusOK {
		t.Errorf("unrelated client: status = %d, want 200", code)
	}
}
