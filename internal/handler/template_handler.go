package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

type TemplateHandler struct {
	templateService *service.TemplateService
}

func NewTemplateHandler(templateService *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// GetAll godoc
// GET /api/v1/seb/templates?enabled=true
func (h *TemplateHandler) GetAll(c *gin.Context) {
	templates, err := h.templateService.List(c.Request.Context(), c.Query("enabled") == "true")
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"templates": templates})
}

// GetByID godoc
// GET /api/v1/seb/templates/:id
func (h *TemplateHandler) GetByID(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}

	t, err := h.templateService.GetByID(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template": t})
}

// Create godoc
// POST /api/v1/seb/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var req model.CreateTemplateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.templateService.Create(c.Request.Context(), req)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"template": t})
}

// Update godoc
// PUT /api/v1/seb/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}

	var req model.UpdateTemplateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.templateService.Update(c.Request.Context(), id, req)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template": t})
}

// SetEnabled godoc
// PATCH /api/v1/seb/templates/:id/enabled
func (h *TemplateHandler) SetEnabled(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}

	var req model.SetTemplateEnabledRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.templateService.SetEnabled(c.Request.Context(), id, req.Enabled); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": req.Enabled})
}

// Delete godoc
// DELETE /api/v1/seb/templates/:id
// Fails with TEMPLATE_IN_USE while a quiz or override references it.
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}

	if err := h.templateService.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
