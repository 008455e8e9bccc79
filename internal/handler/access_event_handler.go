package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/response"
	"github.com/stemsi/exstem-seb/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotSize      = 50
)

// AccessEventHandler exposes the access-prevented audit trail.
type AccessEventHandler struct {
	rdb          *redis.Client
	eventService *service.AccessEventService
	log          zerolog.Logger
}

func NewAccessEventHandler(rdb *redis.Client, eventService *service.AccessEventService, log zerolog.Logger) *AccessEventHandler {
	return &AccessEventHandler{
		rdb:          rdb,
		eventService: eventService,
		log:          log.With().Str("component", "access_event_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/seb/quizzes/:cmid/events?limit=
func (h *AccessEventHandler) List(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.eventService.List(c.Request.Context(), cmid, limit)
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Stream godoc
// GET /api/v1/seb/quizzes/:cmid/events/stream
// Server-sent events: a snapshot of recent events, then every new one.
func (h *AccessEventHandler) Stream(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	recent, err := h.eventService.List(reqCtx, cmid, snapshotSize)
	if err != nil {
		failService(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "cmid": cmid, "events": recent})
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.AccessEventsChannel(cmid))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Int64("cmid", cmid).Msg("Admin attached to access event stream")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int64("cmid", cmid).Msg("Admin detached from access event stream")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Forward raw JSON directly, the publisher already encoded it
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(`{"type":"access_prevented","data":`))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("}\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
