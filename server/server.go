// Package server exposes completions and agent sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/KamdynS/promptline/agent"
	"github.com/KamdynS/promptline/embeddings"
	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/state"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// RequestTimeout bounds non-streaming handlers.
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxRequestBodyBytes int64         `mapstructure:"max_request_body_bytes" validate:"gte=0"`
}

// ApplyDefaults sets default values for unset fields. WriteTimeout stays 0
// so long streams are not cut off.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxRequestBodyBytes == 0 {
		c.MaxRequestBodyBytes = 1 << 20
	}
}

// Deps are the components the handlers serve. Agent, Store and Embeddings
// are optional; their routes are only mounted when set.
type Deps struct {
	Services   llm.Services
	Agent      agent.Agent
	Store      state.Store
	Embeddings embeddings.Provider
}

// Server wraps a gin engine and its http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	deps   Deps
	config Config
	log    zerolog.Logger
}

// New builds the server and registers routes.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if deps.Services == nil {
		return nil, fmt.Errorf("server: services are required")
	}
	cfg.ApplyDefaults()
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine: gin.New(),
		deps:   deps,
		config: cfg,
		log:    log.With().Str("component", "server").Logger(),
	}
	s.engine.Use(s.recovery(), s.requestLogger(), s.bodyLimit())
	s.routes()
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	v1 := s.engine.Group("/v1")
	v1.POST("/chat", s.chat)
	v1.POST("/chat/stream", s.chatStream)
	if s.deps.Embeddings != nil {
		v1.POST("/embeddings", s.embed)
	}
	if s.deps.Agent != nil {
		v1.POST("/sessions/:id/messages", s.sessionMessage)
		v1.POST("/sessions/:id/stream", s.sessionStream)
	}
	if s.deps.Store != nil {
		v1.GET("/sessions/:id", s.sessionTranscript)
		v1.DELETE("/sessions/:id", s.deleteSession)
	}
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting http server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("stopping http server")
	return s.http.Shutdown(ctx)
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().
					Str("error", fmt.Sprint(err)).
					Str("stack", string(debug.Stack())).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := s.log.Info()
		switch {
		case status >= 500:
			ev = s.log.Error()
		case status >= 400:
			ev = s.log.Warn()
		}
		ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxRequestBodyBytes)
		c.Next()
	}
}
