package websocket

import "github.com/stemsi/exstem-seb/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventSubscribed  Event = "subscribed"
	EventAccessEvent Event = "access_prevented"
	EventPong        Event = "pong"
)

// SubscribedResponse confirms which course module the stream follows.
type SubscribedResponse struct {
	Event Event `json:"event"`
	CMID  int64 `json:"cmid"`
}

// AccessEventResponse relays one access-prevented event.
type AccessEventResponse struct {
	Event Event             `json:"event"`
	Data  model.AccessEvent `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
