package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"platewatch/internal/api"
	"platewatch/internal/config"
	"platewatch/internal/journal"
	"platewatch/internal/logging"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	engine *gin.Engine
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(cfg.API.Origins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.API.Origins,
			AllowMethods:  []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
		engine: engine,
	}

	group := engine.Group("/api", authMiddleware(strings.TrimSpace(cfg.API.Token)))
	group.GET("/health", srv.handleHealth)
	group.GET("/status", srv.handleStatus)
	group.GET("/events", srv.handleEvents)
	group.GET("/logs", srv.handleLogs)
	return srv
}

// serve listens on the configured bind address until ctx is cancelled.
func (s *apiServer) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown", logging.Error(err))
		}
		return nil
	}
}

func (s *apiServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:   "ok",
		CameraID: s.daemon.cfg.Camera.ID,
		RunID:    s.daemon.runID,
	})
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleEvents(c *gin.Context) {
	j := s.daemon.comps.Journal
	if j == nil {
		c.JSON(http.StatusOK, api.EventListResponse{Events: []api.EventItem{}})
		return
	}
	opts := journal.ListOptions{
		Plate:    strings.TrimSpace(c.Query("plate")),
		CameraID: strings.TrimSpace(c.Query("camera")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	entries, err := j.List(c.Request.Context(), opts)
	if err != nil {
		s.logger.Error("list journal entries", logging.Error(err))
		s.writeError(c, http.StatusInternalServerError, "failed to list events")
		return
	}
	c.JSON(http.StatusOK, api.EventListResponse{Events: api.FromEntries(entries)})
}

func (s *apiServer) handleLogs(c *gin.Context) {
	hub := s.daemon.comps.LogHub
	if hub == nil {
		s.writeError(c, http.StatusServiceUnavailable, "log streaming unavailable")
		return
	}
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxLogLimit)
	}

	var (
		events []logging.LogEvent
		next   uint64
	)
	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(c, http.StatusBadRequest, "invalid since")
			return
		}
		events, next = hub.Since(since, limit)
	} else {
		events, next = hub.Tail(limit)
	}
	if events == nil {
		events = []logging.LogEvent{}
	}
	c.JSON(http.StatusOK, api.LogStreamResponse{Events: events, Next: next})
}

func (s *apiServer) writeError(c *gin.Context, status int, message string) {
	c.JSON(status, api.ErrorResponse{Error: message})
}
