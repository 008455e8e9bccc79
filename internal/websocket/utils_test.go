package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAccessEvent(t *testing.T) {
	out, err := DecodeAccessEvent(`{"user_id":7,"quiz_id":3,"cmid":30,"reason":"not_seb","ip":"10.0.0.1"}`)
	require.NoError(t, err)

	assert.Equal(t, EventAccessEvent, out.Event)
	assert.Equal(t, 7, out.Data.UserID)
	assert.Equal(t, int64(30), out.Data.CMID)
	assert.Equal(t, model.ReasonNotSEB, out.Data.Reason)

	_, err = DecodeAccessEvent("not json")
	assert.Error(t, err)
}

func TestWriteAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		Prepare(conn)

		var req RequestEnvelope
		if err := ReadJSON(conn, &req); err != nil {
			return
		}
		if req.Action == ActionPing {
			_ = WriteTyped(conn, PongResponse{Event: EventPong})
			return
		}
		_ = WriteError(conn, "unknown action: "+string(req.Action))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("ping answered with pong", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(RequestEnvelope{Action: ActionPing}))
		var resp PongResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, EventPong, resp.Event)
	})

	t.Run("unknown action answered with error", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(RequestEnvelope{Action: "subscribe"}))
		var resp ErrorResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, EventError, resp.Event)
		assert.Equal(t, "unknown action: subscribe", resp.Error)
	})
}
