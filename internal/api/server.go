package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gap-reversion-bot/internal/auth"
	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
	"gap-reversion-bot/internal/metrics"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string
	RateLimit      int // requests per minute per /api route
	MetricsEnabled bool
	EventHistory   int
}

// PositionSource reports the broker-side position for a symbol
type PositionSource interface {
	PositionQty(ctx context.Context, symbol string) (int, error)
}

// Server is the read-only status API
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	status      *StatusStore
	hub         *WSHub
	positions   PositionSource
	symbol      string
	jwtManager  *auth.JWTManager
	rateLimiter *RateLimiter
	startedAt   time.Time
	logger      *logging.Logger

	healthMu sync.RWMutex
	checks   map[string]HealthCheck
	stats    map[string]HealthStat
}

// NewServer creates the API server and subscribes it to the bus.
// jwtManager and positions may be nil.
func NewServer(config ServerConfig, bus *events.EventBus, symbol string, positions PositionSource, jwtManager *auth.JWTManager) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 120
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      config,
		status:      NewStatusStore(config.EventHistory),
		hub:         NewWSHub(config.AllowedOrigins),
		positions:   positions,
		symbol:      symbol,
		jwtManager:  jwtManager,
		rateLimiter: NewRateLimiter(config.RateLimit, time.Minute),
		startedAt:   time.Now(),
		logger:      logging.WithComponent("api"),
		checks:      make(map[string]HealthCheck),
		stats:       make(map[string]HealthStat),
	}

	if bus != nil {
		s.status.Attach(bus)
		bus.SubscribeAll(s.hub.BroadcastEvent)
	}
	go s.hub.Run()

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.config.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := s.router.Group("/api")
	api.Use(s.rateLimiter.Middleware())
	if s.jwtManager != nil {
		api.Use(auth.Middleware(s.jwtManager))
	}
	{
		api.GET("/status", s.handleStatus)
		api.GET("/events", s.handleEvents)
		api.GET("/position", s.handlePosition)
		api.GET("/ws", s.hub.ServeWS)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Status exposes the store backing /api/status
func (s *Server) Status() *StatusStore {
	return s.status
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.status.Status()
	if status == nil {
		errorResponse(c, http.StatusServiceUnavailable, "no cycle has completed yet")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": s.status.Events(limit)})
}

func (s *Server) handlePosition(c *gin.Context) {
	if s.positions == nil {
		errorResponse(c, http.StatusNotImplemented, "position source not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	qty, err := s.positions.PositionQty(ctx, s.symbol)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch position", "symbol", s.symbol)
		errorResponse(c, http.StatusBadGateway, "failed to fetch position")
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": s.symbol, "qty": qty})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

func requestLogger() gin.HandlerFunc {
	log := logging.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
