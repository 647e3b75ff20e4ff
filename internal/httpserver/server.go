package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/decision"
	"github.com/tinytelemetry/logdigest/internal/digest"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/narrate"
	"github.com/tinytelemetry/logdigest/internal/report"
)

// ReportGenerator is the narrow pipeline contract required by the HTTP API.
type ReportGenerator interface {
	Generate(ctx context.Context) (digest.Result, error)
	Host() string
	ReportDir() string
}

// Server exposes the latest report and on-demand generation over HTTP.
type Server struct {
	addr      string
	gen       ReportGenerator
	server    *http.Server
	listener  net.Listener
	serveErr  chan error
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	mu      sync.Mutex
	lastRun *digest.Result
	lastAt  time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, gen ReportGenerator) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		gen:      gen,
		serveErr: make(chan error, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/reports/latest", s.handleLatest)
	r.GET("/api/reports/latest/summary", s.handleLatestSummary)
	r.POST("/api/reports", s.handleGenerate)
	r.POST("/api/decide", s.handleDecide)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()

	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("component", "httpserver").Err(err).Msg("serve failed")
			s.serveErr <- err
		}
	}()
	return nil
}

// Wait blocks until ctx is done or the serve loop fails. On cancellation the
// server is shut down; a serve failure is returned as is.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-s.serveErr:
		s.cancel()
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Record stores the outcome of a run triggered outside the API.
func (s *Server) Record(res digest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &res
	s.lastAt = time.Now()
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"host":   s.gen.Host(),
	}
	s.mu.Lock()
	if s.lastRun != nil {
		body["last_run"] = gin.H{
			"run_id": s.lastRun.RunID,
			"path":   s.lastRun.Path,
			"at":     s.lastAt.Format(time.RFC3339),
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, body)
}

func (s *Server) latestPath(c *gin.Context) (string, bool) {
	path, err := report.Latest(s.gen.ReportDir(), s.gen.Host())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report generated yet"})
			return "", false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return "", false
	}
	return path, true
}

func (s *Server) handleLatest(c *gin.Context) {
	path, ok := s.latestPath(c)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}
	c.Header("X-Report-Path", path)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (s *Server) handleLatestSummary(c *gin.Context) {
	path, ok := s.latestPath(c)
	if !ok {
		return
	}
	text, err := narrate.ExtractSummaryFile(path)
	if err != nil {
		if errors.Is(err, narrate.ErrNoSummary) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "report has no summary", "path": path})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "summary": text})
}

func (s *Server) handleGenerate(c *gin.Context) {
	res, err := s.gen.Generate(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, eventsource.ErrSourceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error(), "run_id": res.RunID})
		return
	}
	s.Record(res)

	unavailable := make([]string, 0, len(res.Unavailable))
	for _, ch := range res.Unavailable {
		unavailable = append(unavailable, ch.String())
	}
	c.JSON(http.StatusCreated, gin.H{
		"run_id":      res.RunID,
		"path":        res.Path,
		"unavailable": unavailable,
	})
}

func (s *Server) handleDecide(c *gin.Context) {
	var req struct {
		Options []decision.Option `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	d, err := decision.Decide(req.Options)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}
