package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/corpus"
	"horse.fit/corpus/internal/db"
	"horse.fit/corpus/internal/ingest"
)

const maxPostsPerBatch = 500

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool     *db.Pool
	runner   *corpus.Runner
	ingestor *ingest.Service
	logger   zerolog.Logger
	opts     Options
}

func NewServer(pool *db.Pool, runner *corpus.Runner, ingestor *ingest.Service, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		// NLP runs for a dense day can take a while.
		opts.WriteTimeout = 5 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		runner:   runner,
		ingestor: ingestor,
		logger:   logger,
		opts:     opts,
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/days/:date/posts", s.handleDayPosts)
	api.GET("/days/:date/runs", s.handleDayRuns)
	api.POST("/days/:date/posts", s.handleIngest)
	api.POST("/days/:date/nlp", s.handleNLP)

	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("corpus api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("corpus api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "corpus",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleDayPosts(c echo.Context) error {
	date, err := parseDateParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	match := map[string]any{}
	if v := strings.TrimSpace(c.QueryParam("type")); v != "" {
		match["type"] = v
	}
	if v := strings.TrimSpace(c.QueryParam("lang")); v != "" {
		match["lang"] = v
	}
	if v := strings.TrimSpace(c.QueryParam("country")); v != "" {
		match["country"] = v
	}

	var posts []db.Post
	if c.QueryParam("all_versions") == "true" {
		posts, err = s.pool.FindPosts(c.Request().Context(), date, match)
	} else {
		posts, err = s.pool.FindLatestPosts(c.Request().Context(), date, match)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("day", c.Param("date")).Msg("query day posts failed")
		return internalError(c, "Failed to load posts")
	}

	if len(posts) == 0 {
		return failNotFound(c, "No posts for this day")
	}
	return success(c, map[string]any{
		"day":   date.Format("2006-01-02"),
		"posts": posts,
	})
}

func (s *Server) handleDayRuns(c echo.Context) error {
	date, err := parseDateParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	runs, err := s.pool.RecentNLPRuns(c.Request().Context(), date, 50)
	if err != nil {
		s.logger.Error().Err(err).Str("day", c.Param("date")).Msg("query nlp runs failed")
		return internalError(c, "Failed to load runs")
	}
	return success(c, map[string]any{
		"day":  date.Format("2006-01-02"),
		"runs": runs,
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	if s.ingestor == nil {
		return fail(c, http.StatusServiceUnavailable, "Ingestion is not enabled", nil)
	}

	date, err := parseDateParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	var payloads []json.RawMessage
	if err := c.Bind(&payloads); err != nil {
		return fail(c, http.StatusBadRequest, "Request body must be a JSON array of post payloads", nil)
	}
	if len(payloads) == 0 {
		return fail(c, http.StatusBadRequest, "Request body must contain at least one payload", nil)
	}
	if len(payloads) > maxPostsPerBatch {
		return fail(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Batch exceeds %d payloads", maxPostsPerBatch), nil)
	}

	result, err := s.ingestor.IngestDay(c.Request().Context(), date, payloads)
	if err != nil {
		s.logger.Error().Err(err).Str("day", c.Param("date")).Msg("ingest batch failed")
		return internalError(c, "Ingestion failed")
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func (s *Server) handleNLP(c echo.Context) error {
	if s.runner == nil {
		return fail(c, http.StatusServiceUnavailable, "NLP is not enabled", nil)
	}

	date, err := parseDateParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	phaseParam := strings.TrimSpace(c.QueryParam("phase"))
	if phaseParam == "" {
		phaseParam = string(corpus.PhaseAll)
	}
	phase, err := corpus.ParsePhase(phaseParam)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	counts, err := s.runner.RunDay(c.Request().Context(), date, phase)
	if err != nil {
		s.logger.Error().Err(err).Str("day", c.Param("date")).Msg("nlp run failed")
		return internalError(c, "NLP run failed")
	}
	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"day":    date.Format("2006-01-02"),
		"phase":  string(phase),
		"counts": counts,
	})
}

func parseDateParam(c echo.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.Param("date"))
	date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return date, nil
}
