// Package server is the admin HTTP surface of the consumer and provider
// binaries. The polling loop publishes snapshots; handlers only read them.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

type Server struct {
	name     string
	addr     string
	appeared time.Time
	router   *gin.Engine
	http     *http.Server

	mu       sync.RWMutex
	snapshot any
}

func New(name, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.AdminRequests(name, observability.InitLogger(name)),
	)
	s := &Server{name: name, addr: addr, appeared: time.Now(), router: router}
	s.registerRoutes()
	return s
}

// Publish replaces what /streams reports.
func (s *Server) Publish(v any) {
	s.mu.Lock()
	s.snapshot = v
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.http = &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", s.addr).Str("name", s.name).Msg("server.Start")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", s.addr).Msg("server.Start failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).Round(time.Second).String(),
			"service": s.name,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/streams", func(c *gin.Context) {
		s.mu.RLock()
		v := s.snapshot
		s.mu.RUnlock()
		if v == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no session"})
			return
		}
		c.JSON(http.StatusOK, v)
	})
}
