package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

// SEBSettingsHandler manages per-quiz SEB settings and overrides.
type SEBSettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSEBSettingsHandler creates a new SEBSettingsHandler.
func NewSEBSettingsHandler(settingsService *service.SettingsService) *SEBSettingsHandler {
	return &SEBSettingsHandler{settingsService: settingsService}
}

// GetSettings godoc
// GET /api/v1/seb/quizzes/:cmid/settings
func (h *SEBSettingsHandler) GetSettings(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	settings, err := h.settingsService.Get(c.Request.Context(), cmid)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// SaveSettings godoc
// PUT /api/v1/seb/quizzes/:cmid/settings
// Validates and stores the quiz's settings. Mode 0 turns SEB off.
func (h *SEBSettingsHandler) SaveSettings(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	var req model.SaveQuizSettingsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	settings, err := h.settingsService.Save(c.Request.Context(), cmid, req, middleware.CurrentUserID(c))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// DeleteSettings godoc
// DELETE /api/v1/seb/quizzes/:cmid/settings
func (h *SEBSettingsHandler) DeleteSettings(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	if err := h.settingsService.Delete(c.Request.Context(), cmid); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// UploadConfigFile godoc
// POST /api/v1/seb/quizzes/:cmid/config-file
// Accepts a multipart "file" field holding a .seb file.
func (h *SEBSettingsHandler) UploadConfigFile(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	f, err := h.settingsService.UploadConfigFile(c.Request.Context(), cmid, header.Filename, file)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusCreated, f)
}

// ListOverrides godoc
// GET /api/v1/seb/quizzes/:cmid/overrides
func (h *SEBSettingsHandler) ListOverrides(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	overrides, err := h.settingsService.ListOverrides(c.Request.Context(), cmid)
	if err != nil {
		failService(c, err)
		return
	}
	if overrides == nil {
		overrides = []model.Override{}
	}
	response.Success(c, http.StatusOK, overrides)
}

// SaveOverride godoc
// PUT /api/v1/seb/overrides/:override_id
// Stores the SEB part of a user or group override window.
func (h *SEBSettingsHandler) SaveOverride(c *gin.Context) {
	overrideID, ok := paramInt64(c, "override_id")
	if !ok {
		return
	}

	var req model.SaveOverrideRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	o, err := h.settingsService.SaveOverride(c.Request.Context(), overrideID, req)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, o)
}

// DeleteOverride godoc
// DELETE /api/v1/seb/overrides/:override_id
func (h *SEBSettingsHandler) DeleteOverride(c *gin.Context) {
	overrideID, ok := paramInt64(c, "override_id")
	if !ok {
		return
	}

	if err := h.settingsService.DeleteOverrides(c.Request.Context(), overrideID); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
