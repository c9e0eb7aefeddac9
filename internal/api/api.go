package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashbot/internal/bot"
)

// Runner is the part of the orchestrator the API exposes.
type Runner interface {
	TryRunOnce(ctx context.Context, testMode bool) (bot.CycleResult, error)
}

// Server exposes a health probe and a manual trigger for one cycle.
type Server struct {
	router *gin.Engine
	runner Runner
	logger *zap.Logger
}

func NewServer(runner Runner, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{router: router, runner: runner, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.POST("/run", s.handleRun)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type runRequest struct {
	TestMode bool `json:"test_mode"`
}

func (s *Server) handleRun(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.logger.Error("failed to bind run request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Minute)
	defer cancel()

	res, err := s.runner.TryRunOnce(ctx, req.TestMode)
	if err != nil {
		if errors.Is(err, bot.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "a cycle is already running"})
			return
		}
		s.logger.Error("manual cycle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": res})
}

// Start runs the API server on the given address. It blocks until the
// listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("API server starting", zap.String("address", addr))
	return s.router.Run(addr)
}
