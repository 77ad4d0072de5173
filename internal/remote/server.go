// ABOUTME: HTTP remote control API
// ABOUTME: Echo routes for playback commands, a websocket push feed and Prometheus metrics
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	clientBuffer  = 8
)

// Player is the part of the app the API drives
type Player interface {
	Send(ctx context.Context, cmd app.Command) error
	Snapshot() app.Snapshot
	Subscribe() (<-chan app.Snapshot, func())
	OnMetadata(fn streaming.MetadataFunc) *streaming.Connection
}

// Config holds remote API configuration
type Config struct {
	Addr   string
	Player Player
	// Metrics is served at /metrics when set
	Metrics http.Handler
	Logger  *zerolog.Logger
}

// Server serves the remote API
type Server struct {
	config   Config
	echo     *echo.Echo
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	listener net.Listener
}

// Message is a websocket push frame
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type startRequest struct {
	URL string `json:"url"`
}

type pauseRequest struct {
	Pause *int `json:"pause"`
}

type gainRequest struct {
	Gain *float32 `json:"gain"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// New creates a remote API server
func New(config Config) *Server {
	logger := log.Logger.With().Str("component", "remote").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		echo:   echo.New(),
		upgrader: websocket.Upgrader{
			// The API is meant for the local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)
	api.POST("/pause", s.handlePause)
	api.PUT("/gain", s.handleGain)
	api.PUT("/mute", s.handleMute)
	api.GET("/ws", s.handleWebSocket)

	if s.config.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.config.Metrics))
	}
}

// Handler exposes the routes for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.echo.Listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Remote API server failed")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Remote API listening")
	return nil
}

// Port returns the listening port, or zero before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Shutdown stops the server and closes websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.config.Player.Snapshot())
}

func (s *Server) handleStart(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.send(c, app.Start(req.URL))
}

func (s *Server) handleStop(c echo.Context) error {
	return s.send(c, app.Stop())
}

func (s *Server) handlePause(c echo.Context) error {
	var req pauseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	flag := -1
	if req.Pause != nil {
		flag = *req.Pause
	}
	return s.send(c, app.Pause(flag))
}

func (s *Server) handleGain(c echo.Context) error {
	var req gainRequest
	if err := c.Bind(&req); err != nil || req.Gain == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "gain is required")
	}
	if *req.Gain < 0 || *req.Gain > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "gain must be between 0 and 1")
	}
	return s.send(c, app.SetGain(*req.Gain))
}

func (s *Server) handleMute(c echo.Context) error {
	var req muteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.send(c, app.SetMuted(req.Muted))
}

func (s *Server) send(c echo.Context, cmd app.Command) error {
	if err := s.config.Player.Send(c.Request().Context(), cmd); err != nil {
		if errors.Is(err, app.ErrStopped) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "player stopped")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted", "command": cmd.Kind.String()})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return nil
	}

	s.logger.Info().Str("remote", c.Request().RemoteAddr).Msg("WebSocket client connected")
	s.serveClient(conn)
	s.logger.Info().Str("remote", c.Request().RemoteAddr).Msg("WebSocket client disconnected")
	return nil
}

// serveClient pushes snapshots and metadata until the client or server goes away
func (s *Server) serveClient(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	snapshots, unsubscribe := s.config.Player.Subscribe()
	defer unsubscribe()

	meta := make(chan metadata.Map, clientBuffer)
	sub := s.config.Player.OnMetadata(func(m metadata.Map) {
		select {
		case meta <- m:
		default:
		}
	})
	defer sub.Disconnect()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("WebSocket read error")
				}
				return
			}
		}
	}()

	s.writeLoop(ctx, conn, snapshots, meta)
	_ = conn.Close()
	<-readDone
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, snapshots <-chan app.Snapshot, meta <-chan metadata.Map) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	if err := s.write(conn, Message{Type: "snapshot", Data: s.config.Player.Snapshot()}); err != nil {
		return
	}

	for {
		var msg Message
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case snap := <-snapshots:
			msg = Message{Type: "snapshot", Data: snap}
		case m := <-meta:
			msg = Message{Type: "metadata", Data: m}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
			continue
		}

		if err := s.write(conn, msg); err != nil {
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket write failed")
		return err
	}
	return nil
}
