package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

// AccessHandler exposes the SEB access rule to quiz pages.
type AccessHandler struct {
	access *service.AccessManager
	links  *seb.Links
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(access *service.AccessManager, links *seb.Links) *AccessHandler {
	return &AccessHandler{access: access, links: links}
}

// Check godoc
// GET /api/v1/seb/access?cmid=
// Runs behind RequireSEBAccess; reaching the handler means access was granted.
func (h *AccessHandler) Check(c *gin.Context) {
	d, _ := middleware.GetDecision(c)
	response.Success(c, http.StatusOK, d)
}

// QuizView godoc
// GET /quiz/view?id=
// The quiz page every generated configuration starts on. It returns the
// decision together with the notice the page should render.
func (h *AccessHandler) QuizView(c *gin.Context) {
	d, _ := middleware.GetDecision(c)
	cmid, ok := queryCMID(c, "id")
	if !ok {
		return
	}

	desc, err := h.access.Description(c.Request.Context(), middleware.NewAccessContext(c, cmid, h.links.QuizURL(cmid)))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"cmid":        cmid,
		"decision":    d,
		"description": desc,
	})
}

// Description godoc
// GET /api/v1/seb/quizzes/:cmid/description?url=
// Builds the quiz notice without recording anything.
func (h *AccessHandler) Description(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	var q model.DescriptionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	pageURL := q.URL
	if pageURL == "" {
		pageURL = h.links.QuizURL(cmid)
	}

	desc, err := h.access.Description(c.Request.Context(), middleware.NewAccessContext(c, cmid, pageURL))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, desc)
}

// ValidateKeys godoc
// POST /api/v1/seb/validate
// Checks the key hashes the page read from the SEB JavaScript API.
func (h *AccessHandler) ValidateKeys(c *gin.Context) {
	var req model.ValidateKeysRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ac := middleware.NewAccessContext(c, req.CMID, req.URL)
	res, err := h.access.ValidateKeys(c.Request.Context(), ac, req.ConfigKey, req.BrowserExamKey)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// AttemptFinished godoc
// POST /api/v1/seb/quizzes/:cmid/attempt-finished
// Clears the session's access flag so the next page is checked again.
func (h *AccessHandler) AttemptFinished(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	if err := h.access.CurrentAttemptFinished(c.Request.Context(), claims.ID, cmid); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
