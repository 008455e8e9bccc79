package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-seb/internal/model"
)

const (
	writeWait = 10 * time.Second

	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait = 60 * time.Second

	// PingPeriod must be shorter than PongWait.
	PingPeriod = (PongWait * 9) / 10

	maxMessageSize = 4096
)

// Prepare limits inbound frames and keeps the read deadline moving while the
// client answers pings.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WritePing sends a control ping frame.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// DecodeAccessEvent turns a PubSub payload into the event relayed to clients.
func DecodeAccessEvent(payload string) (AccessEventResponse, error) {
	var e model.AccessEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return AccessEventResponse{}, err
	}
	return AccessEventResponse{Event: EventAccessEvent, Data: e}, nil
}

// ReadJSON reads and decodes a message into the provided structure. Every
// message from the client counts as activity.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	if err := conn.ReadJSON(v); err != nil {
		return err
	}
	return conn.SetReadDeadline(time.Now().Add(PongWait))
}
