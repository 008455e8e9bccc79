package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	tokens  map[string]*service.Claims
	revoked map[string]bool
}

func (f *fakeAuthenticator) ValidateToken(tokenStr string) (*service.Claims, error) {
	claims, ok := f.tokens[tokenStr]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

func (f *fakeAuthenticator) ValidateSession(_ context.Context, _ int, jti string) error {
	if f.revoked[jti] {
		return service.ErrSessionInvalid
	}
	return nil
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		tokens: map[string]*service.Claims{
			"good": {
				RegisteredClaims: jwt.RegisteredClaims{ID: "jti-good"},
				UserID:           7,
				Permissions:      []string{string(model.PermissionSEBManage)},
			},
			"old": {RegisteredClaims: jwt.RegisteredClaims{ID: "jti-old"}, UserID: 7},
		},
		revoked: map[string]bool{"jti-old": true},
	}
}

func protectedRouter(auth TokenAuthenticator, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequireJWT(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	r.GET("/p", handlers...)
	return r
}

func TestRequireJWT(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{name: "missing", prepare: func(*http.Request) {}, wantCode: http.StatusUnauthorized, wantBody: "TOKEN_REQUIRED"},
		{name: "bearer", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, wantCode: http.StatusOK},
		{name: "cookie", prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good"}) }, wantCode: http.StatusOK},
		{name: "invalid", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, wantCode: http.StatusUnauthorized, wantBody: "TOKEN_INVALID"},
		{name: "replaced session", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer old") }, wantCode: http.StatusUnauthorized, wantBody: "SESSION_INVALIDATED"},
	}

	r := protectedRouter(newFakeAuthenticator())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	r := gin.New()
	r.GET("/o", OptionalJWT(newFakeAuthenticator()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})

	for token, want := range map[string]string{"": `{"user_id":0}`, "good": `{"user_id":7}`, "old": `{"user_id":0}`} {
		req := httptest.NewRequest(http.MethodGet, "/o?token="+token, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, want, w.Body.String(), "token %q", token)
	}
}

func TestRequirePermission(t *testing.T) {
	auth := newFakeAuthenticator()

	allowed := protectedRouter(auth, RequirePermission(model.PermissionSEBManage))
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	allowed.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	denied := protectedRouter(auth, RequireAnyPermission(model.PermissionSEBBackup, model.PermissionSEBSettings))
	w = httptest.NewRecorder()
	denied.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PERMISSION_DENIED")
}
