package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultIdentityHeader names the actor when authentication is disabled
const DefaultIdentityHeader = "X-User-Email"

// Config defines middleware configuration
type Config struct {
	// Logging configuration
	EnableLogging bool
	SkipPaths     []string

	// CORS configuration
	EnableCORS bool
	CORS       CORSConfig

	// Rate limiting configuration
	EnableRateLimit   bool
	RequestsPerMinute int
	BurstSize         int

	// Authentication configuration
	EnableAuth     bool
	Auth           AuthConfig
	IdentityHeader string
}

// DefaultConfig returns default middleware configuration
func DefaultConfig() *Config {
	return &Config{
		EnableLogging: true,
		SkipPaths:     []string{"/health", "/health/live", "/health/ready", "/metrics"},

		EnableCORS: false,
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
			MaxAge:         86400,
		},

		EnableRateLimit:   false,
		RequestsPerMinute: 600,
		BurstSize:         50,

		EnableAuth:     true,
		Auth:           AuthConfig{Leeway: 30 * time.Second},
		IdentityHeader: DefaultIdentityHeader,
	}
}

// MiddlewareChain holds all middleware instances
type MiddlewareChain struct {
	config  *Config
	logger  *zap.Logger
	auth    *Authentication
	limiter *RateLimiter
}

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(config *Config, logger *zap.Logger) *MiddlewareChain {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MiddlewareChain{config: config, logger: logger}
	if config.EnableAuth {
		m.auth = NewAuthentication(config.Auth, logger)
	}
	if config.EnableRateLimit {
		m.limiter = NewRateLimiter(config.RequestsPerMinute, config.BurstSize)
	}
	return m
}

// Apply installs the middleware every route shares. Recovery and request IDs
// go first so later handlers can rely on them.
func (m *MiddlewareChain) Apply(r gin.IRoutes) {
	r.Use(Recovery(m.logger))
	r.Use(RequestID(m.logger))
	r.Use(SecurityHeaders())

	if m.config.EnableCORS {
		r.Use(CORS(m.config.CORS))
	}
	if m.config.EnableLogging {
		r.Use(Logging(m.logger, m.config.SkipPaths))
	}
}

// Protected returns the handlers for routes that act on behalf of a user:
// identity first, then the per-actor rate limit
func (m *MiddlewareChain) Protected() []gin.HandlerFunc {
	var handlers []gin.HandlerFunc
	if m.auth != nil {
		handlers = append(handlers, m.auth.Middleware())
	} else {
		header := m.config.IdentityHeader
		if header == "" {
			header = DefaultIdentityHeader
		}
		m.logger.Warn("authentication disabled, trusting identity header", zap.String("header", header))
		handlers = append(handlers, HeaderIdentity(header))
	}
	if m.limiter != nil {
		handlers = append(handlers, RateLimit(m.limiter, m.logger))
	}
	return handlers
}

// GetConfig returns the middleware configuration
func (m *MiddlewareChain) GetConfig() *Config {
	return m.config
}
