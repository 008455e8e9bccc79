package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/service"
	ws "github.com/stemsi/exstem-seb/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams access-prevented events to admins over WebSocket.
type WSHandler struct {
	rdb          *redis.Client
	eventService *service.AccessEventService
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, eventService *service.AccessEventService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:          rdb,
		eventService: eventService,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// AccessEventStream godoc
// WS /ws/v1/seb/quizzes/:cmid/events
// Relays access-prevented events of a course module as they happen.
func (h *WSHandler) AccessEventStream(c *gin.Context) {
	cmid, ok := paramInt64(c, "cmid")
	if !ok {
		return
	}
	// Fails with 404 before the upgrade when the quiz does not exist.
	if _, err := h.eventService.List(c.Request.Context(), cmid, 1); err != nil {
		failService(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int64("cmid", cmid).Logger()
	ctx := c.Request.Context()

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.AccessEventsChannel(cmid))
	defer pubsub.Close()
	events := pubsub.Channel()

	if err := ws.WriteTyped(conn, ws.SubscribedResponse{Event: ws.EventSubscribed, CMID: cmid}); err != nil {
		return
	}
	wsLog.Info().Msg("Admin connected to access event stream")

	ws.Prepare(conn)
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	// The reader only signals; every write happens on this goroutine.
	actions := make(chan ws.Action, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case actions <- msg.Action:
			default:
			}
		}
	}()

	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Connection closed")
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		case action := <-actions:
			if action != ws.ActionPing {
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				if err := ws.WriteError(conn, "unknown action: "+string(action)); err != nil {
					return
				}
				continue
			}
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case msg, open := <-events:
			if !open {
				return
			}
			out, err := ws.DecodeAccessEvent(msg.Payload)
			if err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed access event")
				continue
			}
			if err := ws.WriteTyped(conn, out); err != nil {
				return
			}
		}
	}
}
