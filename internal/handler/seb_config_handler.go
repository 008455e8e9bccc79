package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
)

// sebContentType is the media type SEB registers for configuration files.
const sebContentType = "application/seb"

// SEBConfigHandler serves .seb files and the session continuation redirect
// the exam browser lands on after a launch link.
type SEBConfigHandler struct {
	downloads    *service.ConfigDownloadService
	continuation *service.ContinueSessionService
	links        *seb.Links
	sessionTTL   time.Duration
	secureCookie bool
	log          zerolog.Logger
}

// NewSEBConfigHandler creates a new SEBConfigHandler.
func NewSEBConfigHandler(
	downloads *service.ConfigDownloadService,
	continuation *service.ContinueSessionService,
	links *seb.Links,
	sessionTTL time.Duration,
	secureCookie bool,
	log zerolog.Logger,
) *SEBConfigHandler {
	return &SEBConfigHandler{
		downloads:    downloads,
		continuation: continuation,
		links:        links,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
		log:          log.With().Str("component", "seb_config_handler").Logger(),
	}
}

// Download godoc
// GET /seb/config?cmid=
// Sends the configuration for the authenticated user as an attachment.
func (h *SEBConfigHandler) Download(c *gin.Context) {
	cmid, ok := queryCMID(c, "cmid")
	if !ok {
		return
	}

	data, err := h.downloads.Download(c.Request.Context(), cmid, middleware.CurrentUserID(c))
	if err != nil {
		failService(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ConfigFileName))
	c.Data(http.StatusOK, sebContentType, data)
}

// Redirect godoc
// GET /seb/redirect?key=&userid=&cmid=|wantsurl=
// Redeems a session key and forwards the browser. Any failure ends on the
// deployment root without saying why.
func (h *SEBConfigHandler) Redirect(c *gin.Context) {
	var q model.ContinueSessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		h.log.Debug().Interface("fields", fields).Msg("malformed continuation request")
		c.Redirect(http.StatusFound, h.links.Root())
		return
	}

	out, err := h.continuation.Consume(c.Request.Context(), q.Key, q.UserID, c.ClientIP(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidKey) {
			middleware.ClearSessionCookie(c, h.secureCookie)
		} else {
			h.log.Error().Err(err).Int("user_id", q.UserID).Msg("session continuation failed")
		}
		c.Redirect(http.StatusFound, h.links.Root())
		return
	}

	switch {
	case out.Token != "":
		middleware.SetSessionCookie(c, out.Token, h.sessionTTL, h.secureCookie)
	case out.LoggedOut:
		middleware.ClearSessionCookie(c, h.secureCookie)
	}

	c.Redirect(http.StatusFound, h.target(q))
}

// target picks where a redeemed key leads. wantsurl must stay on this host.
func (h *SEBConfigHandler) target(q model.ContinueSessionQuery) string {
	if q.WantsURL != "" {
		if h.links.SameHost(q.WantsURL) {
			return q.WantsURL
		}
		h.log.Warn().Str("wantsurl", q.WantsURL).Msg("blocked redirect to foreign host")
		return h.links.Root()
	}
	if q.CMID > 0 {
		return h.links.ConfigURL(q.CMID)
	}
	return h.links.Root()
}
