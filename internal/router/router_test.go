package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/handler"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	peerAddr   = "203.0.113.9:40123"
	spoofedIP  = "10.0.0.1"
	wwwRootURL = "https://lms.example.com"
)

func clientIPOf(t *testing.T, cfg *config.Config, forwardedFor string) string {
	t.Helper()
	r, err := NewEngine(cfg)
	require.NoError(t, err)
	r.GET("/ip", func(c *gin.Context) { c.String(http.StatusOK, c.ClientIP()) })

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.RemoteAddr = peerAddr
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Body.String()
}

func TestNewEngine_TrustedProxies(t *testing.T) {
	t.Run("forwarded header ignored without trusted proxies", func(t *testing.T) {
		cfg := &config.Config{GinMode: gin.TestMode}
		assert.Equal(t, "203.0.113.9", clientIPOf(t, cfg, spoofedIP))
	})

	t.Run("forwarded header honoured from a trusted proxy", func(t *testing.T) {
		cfg := &config.Config{GinMode: gin.TestMode, TrustedProxies: []string{"203.0.113.0/24"}}
		assert.Equal(t, spoofedIP, clientIPOf(t, cfg, spoofedIP))
	})

	t.Run("invalid proxy list", func(t *testing.T) {
		_, err := NewEngine(&config.Config{GinMode: gin.TestMode, TrustedProxies: []string{"not-an-address"}})
		assert.Error(t, err)
	})
}

type oneUser struct{ user model.User }

func (u *oneUser) GetByID(_ context.Context, id int) (*model.User, error) {
	if id != u.user.ID {
		return nil, pgx.ErrNoRows
	}
	cp := u.user
	return &cp, nil
}

func (u *oneUser) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, pgx.ErrNoRows
}

func (u *oneUser) UpdateLastIP(context.Context, int, string) error { return nil }

type countingLogins struct{ logins int }

func (c *countingLogins) ForceLogout(context.Context, int) error { return nil }

func (c *countingLogins) CompleteLogin(context.Context, int, string) (string, error) {
	c.logins++
	return "token", nil
}

func TestRedirect_ForwardedForCannotSatisfyIPRestriction(t *testing.T) {
	logins := &countingLogins{}
	keys := service.NewContinueSessionService(
		cache.NewMemoryStore(),
		&oneUser{user: model.User{ID: 5, LastIP: spoofedIP}},
		logins, time.Minute, nil, zerolog.Nop(),
	)
	links := seb.NewLinks(wwwRootURL, "/quiz/view?id={cmid}")
	h := handler.NewSEBConfigHandler(nil, keys, links, time.Hour, true, zerolog.Nop())

	r, err := NewEngine(&config.Config{GinMode: gin.TestMode})
	require.NoError(t, err)
	r.GET("/seb/redirect", h.Redirect)

	key, err := keys.Issue(context.Background(), 5, "")
	require.NoError(t, err)
	require.Equal(t, spoofedIP, key.IP)

	q := url.Values{"key": {key.Value}, "userid": {"5"}, "cmid": {"3"}}
	req := httptest.NewRequest(http.MethodGet, "/seb/redirect?"+q.Encode(), nil)
	req.RemoteAddr = peerAddr
	req.Header.Set("X-Forwarded-For", spoofedIP)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, links.Root(), w.Header().Get("Location"))
	assert.Zero(t, logins.logins)
}
