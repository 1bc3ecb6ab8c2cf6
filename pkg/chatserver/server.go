// Package chatserver exposes the External Interfaces of spec.md §6: a
// bidirectional JSON chat channel per session over a WebSocket, plus
// REST-ish admin endpoints for the Unified Config Service. Grounded on the
// teacher's pkg/server.Server (echo.Echo + CORS/Logger middleware, route
// groups under "/api", the Serve(ctx, net.Listener) entrypoint), with the
// chat channel itself built on gorilla/websocket the way the teacher's
// pkg/audio/transcribe dials one for the OpenAI realtime socket.
package chatserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentplane/ragcore/pkg/chatloop"
	"github.com/agentplane/ragcore/pkg/configservice"
	"github.com/agentplane/ragcore/pkg/store"
)

// Server wires the chat channel and config admin endpoints onto one echo
// instance.
type Server struct {
	e        *echo.Echo
	db       *store.Store
	loop     *chatloop.Loop
	cfg      *configservice.Service
	upgrader websocket.Upgrader
}

// Opt configures a Server at construction time.
type Opt func(*Server)

// WithAllowedOrigin restricts the WebSocket upgrade to a single origin
// instead of the permissive default (every origin, matching the teacher's
// middleware.CORS() default used for its own admin API).
func WithAllowedOrigin(origin string) Opt {
	return func(s *Server) {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return r.Header.Get("Origin") == origin
		}
	}
}

// New builds a Server.
func New(db *store.Store, loop *chatloop.Loop, cfg *configservice.Service, opts ...Opt) *Server {
	e := echo.New()
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())

	s := &Server{
		e:    e,
		db:   db,
		loop: loop,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	group := e.Group("/api")
	group.GET("/health", s.health)

	group.GET("/config", s.getConfig)
	group.PUT("/config", s.updateConfig)
	group.POST("/config/validate", s.validateConfig)
	group.POST("/config/presets/:id/apply", s.applyPreset)
	group.POST("/config/test", s.testConfig)

	group.GET("/sessions/:id/ws", s.chatWebSocket)
	group.POST("/sessions/:id/cancel", s.cancelTurn)

	return s
}

// Serve runs the HTTP server over an already-bound listener, mirroring the
// teacher's pkg/server.Server.Serve signature so callers can reuse the same
// listener-setup helpers (platform-specific listen.go/listen_unix.go).
func (s *Server) Serve(_ context.Context, ln net.Listener) error {
	srv := http.Server{Handler: s.e}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("chatserver: server stopped", "error", err)
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
