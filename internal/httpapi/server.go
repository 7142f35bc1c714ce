// Package httpapi exposes the chat service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"biblerag/internal/domain"
	"biblerag/internal/service"
	"biblerag/internal/session"
)

const maxQuestionLen = 500

// Port is the subset of the RAG service the API serves.
type Port interface {
	Ask(ctx context.Context, sessionID, question string, mode domain.Mode) (service.Reply, error)
	Session(id string) (*session.Session, error)
}

type Options struct {
	AllowOrigins []string
	// AskTimeout bounds one /api/ask request; zero means none.
	AskTimeout time.Duration
}

// Server wraps the echo instance.
type Server struct {
	e    *echo.Echo
	svc  Port
	opts Options
}

type askRequest struct {
	Question  string `json:"question"`
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
}

type sessionResponse struct {
	ID      string         `json:"id"`
	Created time.Time      `json:"created"`
	Turns   []session.Turn `json:"turns"`
}

func New(svc Port, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				slog.Warn("httpapi: request failed", append(attrs, "err", v.Error)...)
				return nil
			}
			slog.Info("httpapi: request", attrs...)
			return nil
		},
	}))
	if len(opts.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	s := &Server{e: e, svc: svc, opts: opts}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.e.Group("/api")
	api.GET("/health", s.health)
	api.POST("/ask", s.ask)
	api.GET("/sessions/:id", s.getSession)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("httpapi: listening", "addr", addr)
	err := s.e.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Question) > maxQuestionLen {
		return echo.NewHTTPError(http.StatusBadRequest, "question is too long")
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if s.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AskTimeout)
		defer cancel()
	}
	reply, err := s.svc.Ask(ctx, req.SessionID, req.Question, mode)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	case errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.svc.Session(c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: sess.ID, Created: sess.Created, Turns: sess.Turns()})
}
