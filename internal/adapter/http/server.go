package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountHeader names the account an upload is imported into
const AccountHeader = "X-Account-ID"

const accountKey = "account_id"

// Server wraps the gin engine serving the HTTP API
type Server struct {
	engine *gin.Engine
	logger *zap.Logger
	addr   string
	server *http.Server
}

// NewServer builds the router: recovery, request logging, token auth and
// the /api/v1 routes.
func NewServer(logger *zap.Logger, addr, mode, token string, statements *StatementHandler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	v1 := r.Group("/api/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	secured := v1.Group("", tokenAuth(token), accountScope())
	statements.RegisterRoutes(secured)

	return &Server{
		engine: r,
		logger: logger,
		addr:   addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for the active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if header != token && header != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func accountScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(AccountHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + AccountHeader + " header"})
			return
		}
		c.Set(accountKey, id)
		c.Next()
	}
}

func accountID(c *gin.Context) uuid.UUID {
	id, _ := c.MustGet(accountKey).(uuid.UUID)
	return id
}
