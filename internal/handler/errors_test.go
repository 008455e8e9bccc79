package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestFailService(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"validation", &service.ValidationError{Fields: map[string]string{"quitpassword": "required"}}, http.StatusBadRequest, response.ErrValidation},
		{"not seb", &service.AccessDeniedError{Reason: model.ReasonNotSEB}, http.StatusForbidden, response.ErrSEBRequired},
		{"wrong key", &service.AccessDeniedError{Reason: model.ReasonInvalidConfigKey}, http.StatusForbidden, response.ErrInvalidSEBKeys},
		{"quiz", service.ErrQuizNotFound, http.StatusNotFound, response.ErrQuizNotFound},
		{"wrapped quiz", fmt.Errorf("load: %w", service.ErrQuizNotFound), http.StatusNotFound, response.ErrQuizNotFound},
		{"template", service.ErrTemplateNotFound, http.StatusNotFound, response.ErrTemplateNotFound},
		{"override", service.ErrOverrideNotFound, http.StatusNotFound, response.ErrOverrideNotFound},
		{"template in use", service.ErrTemplateInUse, http.StatusConflict, response.ErrTemplateInUse},
		{"locked", service.ErrSettingsLocked, http.StatusConflict, response.ErrSettingsLocked},
		{"not configured", service.ErrNotConfigured, http.StatusNotFound, response.ErrSEBNotRequired},
		{"no file", service.ErrNoConfigFile, http.StatusNotFound, response.ErrNoConfigFile},
		{"file type", service.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile},
		{"file size", service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
		{"session key", service.ErrInvalidKey, http.StatusUnauthorized, response.ErrInvalidSessionKey},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext("/")
			failService(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}

	t.Run("unknown error is attached for logging", func(t *testing.T) {
		c, _ := testContext("/")
		failService(c, errors.New("boom"))
		require.Len(t, c.Errors, 1)
		assert.EqualError(t, c.Errors[0].Err, "boom")
	})

	t.Run("validation fields are returned", func(t *testing.T) {
		c, w := testContext("/")
		failService(c, &service.ValidationError{Fields: map[string]string{"quitpassword": "required"}})
		assert.Equal(t, "required", decodeError(t, w).Fields["quitpassword"])
	})
}

func TestQueryCMID(t *testing.T) {
	c, _ := testContext("/seb/config?cmid=42")
	cmid, ok := queryCMID(c, "cmid")
	assert.True(t, ok)
	assert.Equal(t, int64(42), cmid)

	for _, target := range []string{"/seb/config", "/seb/config?cmid=abc", "/seb/config?cmid=0", "/seb/config?cmid=-3"} {
		c, w := testContext(target)
		_, ok := queryCMID(c, "cmid")
		assert.False(t, ok, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, response.ErrInvalidID, decodeError(t, w).Code, target)
	}
}

func TestRedirectTarget(t *testing.T) {
	h := &SEBConfigHandler{
		links: seb.NewLinks("https://lms.example.com", "/quiz/view?id={cmid}"),
		log:   zerolog.Nop(),
	}

	tests := []struct {
		name string
		q    model.ContinueSessionQuery
		want string
	}{
		{"config page", model.ContinueSessionQuery{CMID: 30}, "https://lms.example.com/seb/config?cmid=30"},
		{"same host", model.ContinueSessionQuery{WantsURL: "https://lms.example.com/course/view?id=2"}, "https://lms.example.com/course/view?id=2"},
		{"foreign host", model.ContinueSessionQuery{WantsURL: "https://evil.example.org/"}, "https://lms.example.com"},
		{"foreign host wins over cmid", model.ContinueSessionQuery{CMID: 30, WantsURL: "https://evil.example.org/"}, "https://lms.example.com"},
		{"nothing", model.ContinueSessionQuery{}, "https://lms.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.target(tt.q))
		})
	}
}
