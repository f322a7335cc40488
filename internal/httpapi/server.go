// Package httpapi exposes the attention queue and insights over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/insights"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// ErrorResponse is the body of every 4xx response.
type ErrorResponse struct {
	Code             string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TrendResponse is the body of GET /admin/trends/:metric.
type TrendResponse struct {
	Metric string              `json:"metric"`
	Window string              `json:"window"`
	Points []models.TrendPoint `json:"points"`
}

// Server routes admin requests to the engine services.
type Server struct {
	router    *gin.Engine
	attention core.AttentionService
	insights  insights.Service
	trends    observability.TrendGenerator
}

// NewServer builds the router. Handlers never return 5xx: every failure
// below the boundary degrades to empty data.
func NewServer(attention core.AttentionService, insightSvc insights.Service, trends observability.TrendGenerator) *Server {
	s := &Server{
		router:    gin.New(),
		attention: attention,
		insights:  insightSvc,
		trends:    trends,
	}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/healthz", s.healthz)

	admin := s.router.Group("/admin")
	admin.GET("/attention", s.getAttention)
	admin.GET("/overview", s.getOverview)
	admin.GET("/trends/:metric", s.getTrend)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getAttention(c *gin.Context) {
	q, err := s.attention.Queue(c.Request.Context())
	if err != nil {
		logging.Warn("attention queue unavailable, serving empty queue", "err", err)
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) getOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.insights.Overview(c.Request.Context()))
}

func (s *Server) getTrend(c *gin.Context) {
	metric := c.Param("metric")
	window := c.DefaultQuery("window", observability.DefaultTrendWindow)

	points, err := s.trends.GenerateTrends(c.Request.Context(), metric, window)
	switch {
	case errors.Is(err, observability.ErrUnknownMetric):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "unknown_metric", ErrorDescription: err.Error()})
		return
	case errors.Is(err, observability.ErrUnknownWindow):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "unknown_window", ErrorDescription: err.Error()})
		return
	case err != nil:
		logging.Warn("trend unavailable, serving empty series", "metric", metric, "window", window, "err", err)
		points = []models.TrendPoint{}
	}
	c.JSON(http.StatusOK, TrendResponse{Metric: metric, Window: window, Points: points})
}
