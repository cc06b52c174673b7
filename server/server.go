// Package server exposes uploads and agent queries over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/types"
	"github.com/xhad/insight/pkg/session"
)

// Analyzer answers a query about a loaded upload.
type Analyzer interface {
	HandleLoaded(ctx context.Context, entry session.Entry, query string) (models.AgentResponse, error)
}

type Config struct {
	Analyzer Analyzer
	// Indexer and Chunker, when both set, index uploaded documents for
	// vector retrieval.
	Indexer types.Indexer
	Chunker types.Chunker

	BodyLimit      string
	AnalyzeTimeout time.Duration
	SessionTTL     time.Duration
	MaxUploads     int
	AllowOrigins   []string
	Version        string
	Logger         *zap.Logger
}

type Server struct {
	config   Config
	echo     *echo.Echo
	sessions *session.Store
	upgrader websocket.Upgrader
	log      *zap.Logger
}

const indexDeleteTimeout = 10 * time.Second

func New(config Config) (*Server, error) {
	if config.Analyzer == nil {
		return nil, fmt.Errorf("server needs an analyzer")
	}
	if config.BodyLimit == "" {
		config.BodyLimit = "50M"
	}
	if config.AnalyzeTimeout <= 0 {
		config.AnalyzeTimeout = 2 * time.Minute
	}
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		log:    config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(config.AllowOrigins, r.Header.Get("Origin"))
			},
		},
	}
	s.sessions = session.NewWithConfig(session.Config{
		TTL:        config.SessionTTL,
		MaxEntries: config.MaxUploads,
		Logger:     config.Logger,
		OnRemove:   s.dropIndex,
	})

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = errorHandler(s.log)
	s.setupMiddleware()
	s.registerRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.log.Info("request", fields...)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(s.config.BodyLimit))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
}

func (s *Server) registerRoutes() {
	s.echo.GET("/api/health", s.handleHealth)

	s.echo.POST("/api/upload", s.handleUpload)
	s.echo.POST("/upload_file", s.handleUpload)

	s.echo.POST("/api/analyze", s.handleAnalyze)
	s.echo.POST("/analyze_query", s.handleAnalyze)

	files := s.echo.Group("/api/files")
	files.GET("", s.handleListFiles)
	files.GET("/:id", s.handleGetFile)
	files.DELETE("/:id", s.handleDeleteFile)

	s.echo.GET("/api/ws", s.handleWebSocket)
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Sessions returns the upload registry.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Run serves on addr and sweeps expired uploads until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.sessions.Run(gctx, 0)
		return nil
	})

	g.Go(func() error {
		s.log.Info("server listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return s.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// analyzeEntry answers query under the analyze timeout. Running out of time
// is always reported as LLMTimeout, whichever step was waiting.
func (s *Server) analyzeEntry(ctx context.Context, entry session.Entry, query string) (models.AgentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.AnalyzeTimeout)
	defer cancel()

	resp, err := s.config.Analyzer.HandleLoaded(ctx, entry, query)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errs.Is(err, errs.LLMTimeout) {
		err = errs.Wrap(errs.LLMTimeout, err, "analysis did not finish within %s", s.config.AnalyzeTimeout)
	}
	return resp, err
}

// dropIndex removes the vector index of an upload that left the session
// store.
func (s *Server) dropIndex(e session.Entry) {
	if s.config.Indexer == nil || e.Loaded.Document == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), indexDeleteTimeout)
	defer cancel()
	if err := s.config.Indexer.Delete(ctx, e.ID); err != nil {
		s.log.Warn("failed to delete document index",
			zap.String("file_id", e.ID),
			zap.Error(err))
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
