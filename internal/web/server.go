package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"backtester/internal/core"
	"backtester/internal/data"
	"backtester/internal/indicators"
	"backtester/internal/metrics"
	"backtester/internal/optimizer"
)

type Options struct {
	Addr        string
	ArtifactDir string // default: $TMPDIR/backtester
	InitialCash float64
	Commission  float64
	Strategy    string
	RankBy      string
	Workers     int
	Logger      zerolog.Logger
	Metrics     *metrics.Recorder
}

// Server exposes backtests and sweeps over one loaded base series.
type Server struct {
	opts Options
	base *core.Series
	e    *echo.Echo
	hub  *sseHub

	mu   sync.Mutex
	arts map[string]artifact // id -> files
}

type artifact struct {
	dir   string
	files map[string]string
	zip   string
}

func NewServer(base *core.Series, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = filepath.Join(os.TempDir(), "backtester")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	s := &Server{opts: opts, base: base, hub: newHub(), arts: map[string]artifact{}}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)

	api := e.Group("/api")
	api.GET("/ping", func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]any{"ok": true}) })
	api.GET("/history", s.handleHistory)
	api.POST("/backtest", s.handleBacktest)
	api.POST("/sweep", s.handleSweep)
	api.GET("/export", s.handleExport)
	api.GET("/file", s.handleFile)
	e.GET("/sse", s.hub.Subscribe)
	e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	s.e = e
	return s
}

func (s *Server) Echo() *echo.Echo { return s.e }

// Serve blocks until ctx is done, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.opts.Logger.Info().Str("addr", s.opts.Addr).Msg("web: listening")
		errc <- s.e.Start(s.opts.Addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.e.Shutdown(shutdown); err != nil {
		return err
	}
	s.opts.Logger.Info().Msg("web: stopped")
	return nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.opts.Logger.Debug().Str("method", req.Method).Str("uri", req.RequestURI).
			Int("status", c.Response().Status).Dur("took", time.Since(start)).Msg("http request")
		return nil
	}
}

// runner builds a runner over the server defaults; charts adds the oscillator
// columns drawn in single backtest reports.
func (s *Server) runner(strategy, rankBy string, workers int, cash, commission float64, charts bool, observer func(optimizer.Event)) *optimizer.Runner {
	return optimizer.NewRunner(optimizer.Config{
		InitialCash: cash,
		Commission:  commission,
		Strategy:    strategy,
		RankBy:      rankBy,
		Workers:     workers,
		Logger:      s.opts.Logger,
		Metrics:     s.opts.Metrics,
		Observer:    observer,
	}, data.Resampler{}, indicators.Calculator{Oscillators: charts})
}

func (s *Server) register(id string, a artifact) {
	s.mu.Lock()
	s.arts[id] = a
	s.mu.Unlock()
}

func (s *Server) lookup(id string) (artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arts[id]
	return a, ok
}
