package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"portfolio/internal/auth"
	"portfolio/internal/database"
)

type stubValidator map[string]*auth.TokenClaims

func (s stubValidator) ValidateAccessToken(token string) (*auth.TokenClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func TestRequireAdmin_StopsChainBeforeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"user":  {UserID: "u1", Role: database.RoleUser, TokenType: auth.TokenTypeAccess},
		"admin": {UserID: "a1", Role: database.RoleAdmin, TokenType: auth.TokenTypeAccess},
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantCalls  int
		wantBody   string
	}{
		{name: "missing token", token: "", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"Unauthorized"}`},
		{name: "unknown token", token: "bogus", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"Unauthorized"}`},
		{name: "non-admin", token: "user", wantStatus: http.StatusForbidden, wantBody: `{"error":"Forbidden"}`},
		{name: "admin", token: "admin", wantStatus: http.StatusNoContent, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			router := gin.New()
			router.POST("/guarded", RequireAdmin(validator), func(c *gin.Context) {
				calls++
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if calls != tt.wantCalls {
				t.Fatalf("handler calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Fatalf("body = %s, want %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthMiddleware_AllowsAnyRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{"user": {UserID: "u1", Role: database.RoleUser, TokenType: auth.TokenTypeAccess}}

	router := gin.New()
	router.GET("/me", AuthMiddleware(validator), func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, id)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer user")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}
}
