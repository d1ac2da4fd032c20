// Package server is the browser-facing host: uploads, model detection and
// the two annotation export actions, one isolated session per upload.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/menta2k/dental-vision/internal/config"
	"github.com/menta2k/dental-vision/pkg/analyzer"
	"github.com/menta2k/dental-vision/pkg/annotation"
	"github.com/menta2k/dental-vision/pkg/detection"
	"github.com/menta2k/dental-vision/pkg/processing"
)

// Dependencies are the components the handlers delegate to.
// Detector may be nil, in which case detection answers 503.
type Dependencies struct {
	Analyzer  *analyzer.ImageAnalyzer
	Exporter  *annotation.Exporter
	Detector  *detection.Detector
	Processor *processing.Processor
	Logger    *zap.Logger
}

type Server struct {
	cfg      *config.Config
	deps     Dependencies
	log      *zap.Logger
	sessions *SessionStore
	metrics  *metrics
	engine   *gin.Engine
}

func New(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Processor == nil {
		deps.Processor = processing.NewProcessor()
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.Named("http"),
		sessions: NewSessionStore(time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute),
	}
	s.metrics = newMetrics(func() float64 { return float64(s.sessions.Len()) })

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = int64(cfg.Upload.MaxUploadMB) << 20

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{Registry: s.metrics.registry})))
	api := r.Group("/api")
	api.POST("/images", s.uploadImage)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/detect", s.detect)
	api.POST("/sessions/:id/crops", s.exportCrop)
	api.POST("/sessions/:id/annotations", s.exportAnnotation)

	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases the session store
func (s *Server) Close() {
	s.sessions.Close()
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
