package api

import (
	"context"
	"deckhost/supervisor"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ServerControl is what the control API drives. *supervisor.Supervisor
// implements it.
type ServerControl interface {
	Start(ctx context.Context, port int) (supervisor.Status, error)
	Stop(ctx context.Context) (supervisor.Status, error)
	Restart(ctx context.Context, port int) (supervisor.Status, error)
	Status() supervisor.Status
	Logs() string
	ClearLogs()
	Subscribe(buffer int) (<-chan supervisor.Event, func())
	KillPortOwner(ctx context.Context, port int) ([]int, error)
}

type Controller struct {
	server      ServerControl
	defaultPort func() int
	metrics     http.Handler
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

// NewController builds the API controller. defaultPort is consulted on each
// request that names no port. metrics may be nil, in which case /metrics is
// not served.
func NewController(server ServerControl, defaultPort func() int, metrics http.Handler, logger zerolog.Logger) Controller {
	return Controller{
		server:      server,
		defaultPort: defaultPort,
		metrics:     metrics,
		logger:      logger,
	}
}

// RunServer listens on addr, which must be a loopback address, and serves
// handler in the background. Listen errors are returned immediately.
func RunServer(addr string, handler http.Handler, logger zerolog.Logger) (*http.Server, error) {
	if err := requireLoopback(addr); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Control API server failed")
		}
	}()

	return srv, nil
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid control address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("control API must bind a loopback address, got %q", host)
	}
	return nil
}

func DefineRoutes(ctrl Controller, allowedOrigins *AllowedOrigins) *gin.Engine {
	ctrl.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     CheckWebSocketOrigin(allowedOrigins),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(ctrl.logger), CORSMiddleware(allowedOrigins))
	r.SetTrustedProxies(nil)

	serverRoutes := r.Group("/api/v1/server")
	serverRoutes.POST("/start", ctrl.StartServerHandler)
	serverRoutes.POST("/stop", ctrl.StopServerHandler)
	serverRoutes.POST("/restart", ctrl.RestartServerHandler)
	serverRoutes.GET("/status", ctrl.GetServerStatusHandler)
	serverRoutes.GET("/logs", ctrl.GetServerLogsHandler)
	serverRoutes.DELETE("/logs", ctrl.ClearServerLogsHandler)
	serverRoutes.POST("/kill-port", ctrl.KillPortOwnerHandler)
	serverRoutes.GET("/events", ctrl.ServerEventsWebsocketHandler)

	if ctrl.metrics != nil {
		r.GET("/metrics", gin.WrapH(ctrl.metrics))
	}

	return r
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Control API request")
	}
}

// requestedPort reads the optional ?port= query parameter.
func (ctrl *Controller) requestedPort(c *gin.Context) (int, error) {
	value := c.Query("port")
	if value == "" {
		return ctrl.defaultPort(), nil
	}
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", value)
	}
	return port, nil
}

func (ctrl *Controller) StartServerHandler(c *gin.Context) {
	port, err := ctrl.requestedPort(c)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	status, err := ctrl.server.Start(c.Request.Context(), port)
	if err != nil {
		ctrl.StatusErrorHandler(c, status, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (ctrl *Controller) StopServerHandler(c *gin.Context) {
	status, err := ctrl.server.Stop(c.Request.Context())
	if err != nil {
		ctrl.StatusErrorHandler(c, status, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (ctrl *Controller) RestartServerHandler(c *gin.Context) {
	port, err := ctrl.requestedPort(c)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	status, err := ctrl.server.Restart(c.Request.Context(), port)
	if err != nil {
		ctrl.StatusErrorHandler(c, status, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (ctrl *Controller) GetServerStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ctrl.server.Status())
}

func (ctrl *Controller) GetServerLogsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": ctrl.server.Logs()})
}

func (ctrl *Controller) ClearServerLogsHandler(c *gin.Context) {
	ctrl.server.ClearLogs()
	c.Status(http.StatusNoContent)
}

// KillPortOwnerHandler frees the requested port by killing whatever listens
// on it, for when a stale server blocks a start.
func (ctrl *Controller) KillPortOwnerHandler(c *gin.Context) {
	port, err := ctrl.requestedPort(c)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	pids, err := ctrl.server.KillPortOwner(c.Request.Context(), port)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrPortOwnedByServer) {
			code = http.StatusConflict
		}
		ctrl.ErrorHandler(c, code, err)
		return
	}
	if pids == nil {
		pids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"port": port, "pids": pids})
}

// ServerEventsWebsocketHandler streams supervisor events as JSON messages,
// starting with the current status.
func (ctrl *Controller) ServerEventsWebsocketHandler(c *gin.Context) {
	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.logger.Warn().Err(err).Msg("Failed to upgrade events connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, unsubscribe := ctrl.server.Subscribe(0)
	defer unsubscribe()

	// the client never sends anything; reading detects the disconnect
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	status := ctrl.server.Status()
	if err := conn.WriteJSON(supervisor.Event{Type: supervisor.EventStatus, Status: &status}); err != nil {
		ctrl.logger.Debug().Err(err).Msg("Failed to write to events connection")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				closing := websocket.FormatCloseMessage(websocket.CloseGoingAway, "supervisor closed")
				conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				ctrl.logger.Debug().Err(err).Msg("Failed to write to events connection")
				return
			}
		}
	}
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	ctrl.logger.Warn().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Control API error")
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusErrorHandler reports a failed control operation along with the
// supervisor status it left behind.
func (ctrl *Controller) StatusErrorHandler(c *gin.Context, status supervisor.Status, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, supervisor.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	ctrl.logger.Warn().Err(err).Int("status", code).Str("path", c.Request.URL.Path).Msg("Control API error")
	c.JSON(code, gin.H{"error": err.Error(), "status": status})
}
