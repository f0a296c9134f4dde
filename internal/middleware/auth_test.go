package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"famfin/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := &Claims{
		Role:    role,
		GroupID: "family-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func setupAuthRouter() *gin.Engine {
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	config.Set(cfg)

	r := gin.New()
	api := r.Group("/", AuthMiddleware())
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"principal": c.GetString(PrincipalIDKey),
			"role":      c.GetString(RoleKey),
			"group":     c.GetString(GroupIDKey),
		})
	})
	api.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func doAuthRequest(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	r := setupAuthRouter()

	t.Run("valid_token", func(t *testing.T) {
		rec := doAuthRequest(r, "/me", "Bearer "+signToken(t, testSecret, "user-42", "member", time.Hour))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body := parseBody(t, rec)
		if body["principal"] != "user-42" {
			t.Errorf("principal = %v, want user-42", body["principal"])
		}
		if body["role"] != "member" {
			t.Errorf("role = %v, want member", body["role"])
		}
		if body["group"] != "family-1" {
			t.Errorf("group = %v, want family-1", body["group"])
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing_header", ""},
		{"wrong_scheme", "Basic abc"},
		{"wrong_secret", "Bearer " + signToken(t, "other-secret", "user-42", "member", time.Hour)},
		{"expired", "Bearer " + signToken(t, testSecret, "user-42", "member", -time.Minute)},
		{"no_subject", "Bearer " + signToken(t, testSecret, "", "member", time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAuthRequest(r, "/me", tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != "UNAUTHORIZED" {
				t.Errorf("error code = %q, want UNAUTHORIZED", code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := setupAuthRouter()

	t.Run("admin_allowed", func(t *testing.T) {
		rec := doAuthRequest(r, "/admin", "Bearer "+signToken(t, testSecret, "ops-1", RoleAdmin, time.Hour))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("member_forbidden", func(t *testing.T) {
		rec := doAuthRequest(r, "/admin", "Bearer "+signToken(t, testSecret, "user-42", "member", time.Hour))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if code := errorCode(t, rec); code != "FORBIDDEN" {
			t.Errorf("error code = %q, want FORBIDDEN", code)
		}
	})
}
