// Package api serves the agent status and the command log over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ilievs/panelagent/command"
	"github.com/ilievs/panelagent/core"
)

const statusTimeout = 5 * time.Second

// Caller runs a function on the dispatch loop and waits for it.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	echo     *echo.Echo
	loop     Caller
	monitors core.MonitorManager
	log      *command.Log
	hub      *Hub
	logger   *slog.Logger

	removeListener func()
	hubCancel      context.CancelFunc
}

func NewServer(loop Caller, monitors core.MonitorManager, log *command.Log, logger *slog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		loop:     loop,
		monitors: monitors,
		log:      log,
		hub:      NewHub(log, logger),
		logger:   logger.With("component", "api"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	// Middleware
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	// Routes
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/commands", s.handleCommands)
	s.echo.DELETE("/commands", s.handleClearCommands)
	s.echo.POST("/commands/:id/details", s.handleToggleDetails)
	s.echo.POST("/monitors/poll", s.handlePollNow)
	s.echo.GET("/commands/ws", s.hub.HandleWebSocket)

	ctx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go s.hub.Run(ctx)
	s.removeListener = log.AddListener(s.hub)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on address until Shutdown is called.
func (s *Server) Start(address string) error {
	s.logger.Info("http api listening", "address", address)
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.removeListener()
	s.hubCancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), statusTimeout)
	defer cancel()

	status := core.NewApplicationStatus()
	if err := s.loop.Call(ctx, func() { s.monitors.ReportStatus(status) }); err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, status.Entries())
}

func (s *Server) handleCommands(c echo.Context) error {
	return c.JSON(http.StatusOK, s.log.Commands())
}

func (s *Server) handleClearCommands(c echo.Context) error {
	s.log.Clear()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleToggleDetails(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid command id"})
	}
	if !s.log.ToggleDetails(id) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "command not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePollNow(c echo.Context) error {
	s.monitors.PollNow()
	return c.NoContent(http.StatusAccepted)
}
