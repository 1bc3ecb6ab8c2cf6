package chatserver

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/agentplane/ragcore/pkg/chatloop"
	"github.com/agentplane/ragcore/pkg/store"
)

// clientMessage is the single inbound frame shape the chat channel accepts:
// a new user turn to run.
type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// conn wraps a websocket connection with a write mutex, since chatloop.Loop
// emits frames from multiple goroutines while tool calls run in parallel
// (spec.md §4.I) and gorilla/websocket connections are not safe for
// concurrent writes.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(f chatloop.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// chatWebSocket upgrades to the bidirectional JSON chat channel of spec.md
// §6: on connect it sends `connected` then `message_history`, then for
// every inbound user message it runs one turn through the Streaming Tool
// Loop, forwarding every frame the loop emits.
func (s *Server) chatWebSocket(c echo.Context) error {
	sessionID := c.Param("id")
	ctx := c.Request().Context()

	if _, err := s.db.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cn := &conn{ws: ws}
	defer ws.Close()

	if err := cn.send(chatloop.Connected()); err != nil {
		return nil
	}

	history, err := s.db.MessagesBySession(ctx, sessionID, false)
	if err != nil {
		_ = cn.send(chatloop.ErrorFrame(err))
		return nil
	}
	if err := cn.send(chatloop.MessageHistory(history)); err != nil {
		return nil
	}

	emit := func(f chatloop.Frame) {
		_ = cn.send(f)
	}

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return nil // client disconnected or sent a malformed frame
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		turnCtx := context.WithoutCancel(ctx)
		if err := s.loop.RunTurn(turnCtx, sessionID, msg.Content, emit); err != nil {
			_ = cn.send(chatloop.ErrorFrame(err))
		}
	}
}

// cancelTurn cancels the in-flight assistant turn for a session, per the
// per-user cancelable task registry of spec.md §5.
func (s *Server) cancelTurn(c echo.Context) error {
	sessionID := c.Param("id")
	if !s.loop.Cancel(sessionID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no turn in progress for this session"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
