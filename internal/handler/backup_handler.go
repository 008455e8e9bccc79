package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

type BackupHandler struct {
	backupService *service.BackupService
}

func NewBackupHandler(backupService *service.BackupService) *BackupHandler {
	return &BackupHandler{backupService: backupService}
}

// Export godoc
// GET /api/v1/seb/quizzes/:cmid/backup
// Returns the quiz's SEB configuration as a downloadable JSON document.
func (h *BackupHandler) Export(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	b, err := h.backupService.Export(c.Request.Context(), cmid)
	if err != nil {
		failService(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"seb-backup-%d.json\"", cmid))
	response.Success(c, http.StatusOK, b)
}

// Restore godoc
// POST /api/v1/seb/quizzes/:cmid/restore
// Writes a backup into the quiz, mapping backed-up overrides to new ones.
func (h *BackupHandler) Restore(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}

	var req model.RestoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.backupService.Restore(c.Request.Context(), cmid, req, middleware.CurrentUserID(c)); err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "backup restored"})
}
