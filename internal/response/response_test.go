package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrQuizNotFound)
	})

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"kept", "req-123_abc.def", true},
		{"generated when missing", "", false},
		{"newline replaced", "abc\ninjected", false},
		{"too long replaced", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			got := w.Header().Get("X-Request-ID")
			assert.Equal(t, got, body.Metadata.RequestID)
			assert.NotEmpty(t, got)
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.NotEqual(t, tt.header, got)
			}

			require.NotNil(t, body.Error)
			assert.Equal(t, ErrQuizNotFound, body.Error.Code)
			assert.Equal(t, GetMessage(ErrQuizNotFound), body.Error.Message)
		})
	}
}

func TestRequestIDWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	first := RequestID(c)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, RequestID(c))
}
