package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
)

// Headers sent by Safe Exam Browser with every request.
const (
	HeaderConfigKeyHash = "X-SafeExamBrowser-ConfigKeyHash"
	HeaderRequestHash   = "X-SafeExamBrowser-RequestHash"
)

// ContextKeyDecision is the Gin context key of the access decision.
const ContextKeyDecision = "seb_decision"

// AccessChecker decides whether a request may open a quiz page.
type AccessChecker interface {
	Check(ctx context.Context, ac service.AccessContext) (model.Decision, error)
}

// NewAccessContext describes the current request for the SEB rule. url is
// the absolute URL the browser requested.
func NewAccessContext(c *gin.Context, cmid int64, url string) service.AccessContext {
	ac := service.AccessContext{
		CMID:          cmid,
		URL:           url,
		UserAgent:     c.Request.UserAgent(),
		ConfigKeyHash: c.GetHeader(HeaderConfigKeyHash),
		RequestHash:   c.GetHeader(HeaderRequestHash),
		IP:            c.ClientIP(),
	}
	if claims := GetClaims(c); claims != nil {
		ac.UserID = claims.UserID
		ac.SessionID = claims.ID
		ac.Permissions = claims.Permissions
		if claims.ExpiresAt != nil {
			ac.SessionEnds = claims.ExpiresAt.Time
		}
	}
	return ac
}

// RequireSEBAccess guards quiz pages. The course module id is read from the
// cmidParam query parameter and the checked URL is wwwRoot plus the request
// URI, exactly as the browser hashed it.
func RequireSEBAccess(checker AccessChecker, wwwRoot, cmidParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmid, err := strconv.ParseInt(c.Query(cmidParam), 10, 64)
		if err != nil || cmid <= 0 {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		ac := NewAccessContext(c, cmid, wwwRoot+c.Request.RequestURI)
		d, err := checker.Check(c.Request.Context(), ac)

		var denied *service.AccessDeniedError
		switch {
		case err == nil:
			c.Set(ContextKeyDecision, d)
			c.Next()
		case errors.As(err, &denied):
			if d.RedirectURL != "" {
				c.Redirect(http.StatusFound, d.RedirectURL)
				c.Abort()
				return
			}
			code := response.ErrInvalidSEBKeys
			if denied.Reason == model.ReasonNotSEB {
				code = response.ErrSEBRequired
			}
			response.AbortFailWithData(c, http.StatusForbidden, code, d)
		case errors.Is(err, service.ErrQuizNotFound):
			response.AbortFail(c, http.StatusNotFound, response.ErrQuizNotFound)
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}

// GetDecision returns the decision RequireSEBAccess stored, if any.
func GetDecision(c *gin.Context) (model.Decision, bool) {
	val, exists := c.Get(ContextKeyDecision)
	if !exists {
		return model.Decision{}, false
	}
	d, ok := val.(model.Decision)
	return d, ok
}
