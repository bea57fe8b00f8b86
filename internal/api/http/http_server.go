package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spotdesk/escrow-reconciler/internal/api/dto"
	"github.com/spotdesk/escrow-reconciler/internal/middleware"
	"github.com/spotdesk/escrow-reconciler/internal/recon"
)

// Server exposes the reconcile trigger to schedulers over HTTP. At most
// one pass runs at a time; overlapping triggers get 409.
type Server struct {
	eng *recon.Engine
	log *zap.Logger
	mu  sync.Mutex
}

func NewServer(eng *recon.Engine, log *zap.Logger) *Server {
	return &Server{eng: eng, log: log}
}

func (s *Server) Run(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	rl := middleware.NewRateLimiter(time.Second)
	r.GET("/healthz", s.health)
	r.POST("/reconcile", rl.Middleware(), s.reconcile)

	return r.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

func (s *Server) reconcile(c *gin.Context) {
	if !s.mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a pass is already running"})
		return
	}
	defer s.mu.Unlock()

	summary, err := s.eng.Run(c)
	if err != nil {
		s.log.Error("triggered pass failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.FromSummary(summary))
}
