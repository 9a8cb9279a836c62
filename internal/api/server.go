// Package api exposes the small admin HTTP surface: liveness, Prometheus
// metrics and a manual run trigger.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pace/ingest-service/internal/scheduler"
)

const version = "0.1.0"

// Trigger starts an ingest run in the background; *scheduler.Scheduler
// implements it.
type Trigger interface {
	Trigger() error
	Running() bool
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

// New builds the router. metricsHandler may be nil.
func New(addr string, trigger Trigger, metricsHandler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "ingest-service",
			"version": version,
			"running": trigger != nil && trigger.Running(),
		})
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
	r.POST("/runs", func(c *gin.Context) {
		if trigger == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not configured"})
			return
		}
		if err := trigger.Trigger(); err != nil {
			switch {
			case errors.Is(err, scheduler.ErrRunInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			case errors.Is(err, scheduler.ErrStopped):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			log.Error("trigger run", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start run"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	})

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.log.Info("admin api listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
