package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"timbre/internal/fetch"
	"timbre/internal/gate"
	"timbre/internal/speech"
)

func NewServer(config *ServerConfig, fetcher *fetch.Fetcher, g *gate.Gate, svc *speech.Service, synth speech.Synthesizer, logger *zap.SugaredLogger) *Server {
	if config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:  config,
		router:  gin.New(),
		speech:  svc,
		fetcher: fetcher,
		gate:    g,
		synth:   synth,
		logger:  logger,
		metrics: &Metrics{},
	}

	server.SetupMiddleware()
	server.SetupRoutes()

	return server
}

func (s *Server) SetupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Errorw("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		s.SendError(c, 500, "Internal server error", "")
	}))

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Sampling-Rate", "X-Infer-Mode", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.router.Use(s.RequestIDMiddleware())
	s.router.Use(s.LoggingMiddleware())
	s.router.Use(s.MetricsMiddleware())
}

// RequestIDMiddleware tags every request with an ID, honoring one supplied
// by the client so calls can be correlated across services.
func (s *Server) RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Infow("request handled",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

func (s *Server) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.metrics.RequestCount.Add(1)
		c.Next()
		if c.Writer.Status() == 429 {
			s.metrics.RejectedCount.Add(1)
		}
	}
}
