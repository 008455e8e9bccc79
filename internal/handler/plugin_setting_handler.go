package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

type PluginSettingHandler struct {
	pluginService *service.PluginSettingService
}

func NewPluginSettingHandler(pluginService *service.PluginSettingService) *PluginSettingHandler {
	return &PluginSettingHandler{pluginService: pluginService}
}

// GetAllSettings godoc
// GET /api/v1/seb/plugin-settings
func (h *PluginSettingHandler) GetAllSettings(c *gin.Context) {
	settings, err := h.pluginService.GetAllSettings(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings godoc
// PUT /api/v1/seb/plugin-settings
func (h *PluginSettingHandler) UpdateSettings(c *gin.Context) {
	var req model.UpdatePluginSettingsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.pluginService.UpdateSettings(c.Request.Context(), req.Settings); err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "settings updated successfully"})
}
