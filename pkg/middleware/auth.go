package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ActorKey is the gin context key holding the authenticated user's email
const ActorKey = "actor"

// Claims holds JWT token claims. Tokens are issued by an external identity
// provider; Email identifies the actor and falls back to the subject.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// Authentication verifies HMAC-signed bearer tokens
type Authentication struct {
	config   AuthConfig
	parser   *jwt.Parser
	validate *validator.Validate
	logger   *zap.Logger
}

var (
	errMissingToken = errors.New("missing authentication token")
	errNoIdentity   = errors.New("token carries no email identity")
)

// NewAuthentication creates a new authentication middleware
func NewAuthentication(config AuthConfig, logger *zap.Logger) *Authentication {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &Authentication{
		config:   config,
		parser:   jwt.NewParser(opts...),
		validate: validator.New(),
		logger:   logger,
	}
}

// Middleware rejects requests without a valid token and stores the actor
func (a *Authentication) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			a.logger.Debug("authentication failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// Authenticate verifies the Authorization header value, with or without the
// Bearer scheme, and returns the normalized actor email
func (a *Authentication) Authenticate(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return "", errMissingToken
	}

	claims := &Claims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, a.key); err != nil {
		return "", err
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errNoIdentity
	}
	if err := a.validate.Var(email, "email"); err != nil {
		return "", errNoIdentity
	}
	return email, nil
}

func (a *Authentication) key(*jwt.Token) (interface{}, error) {
	return a.config.Secret, nil
}

// SignToken creates an HS256 token for email. It exists for tests and local
// tooling; production tokens come from the identity provider.
func SignToken(secret []byte, issuer, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// HeaderIdentity trusts the actor named in header. It is only installed when
// authentication is disabled, behind a proxy that authenticates users.
func HeaderIdentity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.ToLower(strings.TrimSpace(c.GetHeader(header)))
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing " + header + " header",
			})
			return
		}
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor, or "" when none is set
func ActorFromContext(c *gin.Context) string {
	return c.GetString(ActorKey)
}
