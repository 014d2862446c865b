package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/internal/serving"
	"github.com/Aidin1998/modelserver/internal/training"
)

// Options tunes the HTTP server.
type Options struct {
	// MaxItems bounds the records accepted by one prediction request.
	MaxItems     int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
}

// Server represents the API server
type Server struct {
	router   *gin.Engine
	logger   *zap.Logger
	runtime  *serving.Runtime
	journal  training.Journal
	maxItems int
	opts     Options
	http     *http.Server
}

// NewServer wires the routes of the model server onto a gin engine.
func NewServer(logger *zap.Logger, runtime *serving.Runtime, journal training.Journal, opts Options) *Server {
	if journal == nil {
		journal = training.NopJournal{}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "modelserver"
	}

	server := &Server{
		logger:   logger.Named("api"),
		runtime:  runtime,
		journal:  journal,
		maxItems: opts.MaxItems,
		opts:     opts,
	}

	useJSONFieldNames()
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))

	server.router = router
	server.registerRoutes()
	return server
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	predict := s.router.Group("/predict")
	{
		predict.POST("/compliance-gaps", s.predictComplianceGaps)
		predict.POST("/regulatory-changes", s.predictRegulatoryChanges)
		predict.POST("/drift-analysis", s.analyzeDrift)
		predict.POST("/optimize-deployment", s.optimizeDeployment)
		predict.POST("/market-signals", s.predictMarketSignals)
		predict.POST("/classify-regulations", s.classifyRegulations)
	}

	s.router.POST("/train/:model", s.trainModel)
	s.router.POST("/retrain/all", s.retrainAll)
	s.router.GET("/training/runs", s.listTrainingRuns)

	models := s.router.Group("/models")
	{
		models.GET("", s.listModels)
		models.GET("/:name/metrics", s.getModelMetrics)
		models.POST("/:name/reload", s.reloadModel)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.Health())
}
