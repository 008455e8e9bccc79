package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
)

// failService maps a service error to the response envelope. Unknown errors
// are attached to the context for the logger and reported as internal.
func failService(c *gin.Context, err error) {
	var verr *service.ValidationError
	var denied *service.AccessDeniedError

	switch {
	case errors.As(err, &verr):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields)
	case errors.As(err, &denied):
		code := response.ErrInvalidSEBKeys
		if denied.Reason == model.ReasonNotSEB {
			code = response.ErrSEBRequired
		}
		response.Fail(c, http.StatusForbidden, code)
	case errors.Is(err, service.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotFound)
	case errors.Is(err, service.ErrTemplateNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrTemplateNotFound)
	case errors.Is(err, service.ErrOverrideNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrOverrideNotFound)
	case errors.Is(err, service.ErrTemplateInUse):
		response.Fail(c, http.StatusConflict, response.ErrTemplateInUse)
	case errors.Is(err, service.ErrSettingsLocked):
		response.Fail(c, http.StatusConflict, response.ErrSettingsLocked)
	case errors.Is(err, service.ErrNotConfigured):
		response.Fail(c, http.StatusNotFound, response.ErrSEBNotRequired)
	case errors.Is(err, service.ErrNoConfigFile):
		response.Fail(c, http.StatusNotFound, response.ErrNoConfigFile)
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrFileTooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	case errors.Is(err, service.ErrInvalidKey):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidSessionKey)
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// paramInt64 parses a positive id path parameter.
func paramInt64(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// queryCMID parses a positive course module id query parameter.
func queryCMID(c *gin.Context, name string) (int64, bool) {
	cmid, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || cmid <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return cmid, true
}
