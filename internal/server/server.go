package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tarefas/internal/auth"
	"tarefas/internal/logctx"
	"tarefas/internal/models"
	"tarefas/internal/storage"
)

const msgTaskNotFound = "Tarefa não encontrada"

// Server provides HTTP handlers for the task API.
type Server struct {
	engine         *gin.Engine
	store          storage.TaskStore
	authn          *auth.Authenticator
	logger         *slog.Logger
	staticDir      string
	allowedOrigins []string
}

// Option configures optional parts of the server.
type Option func(*Server)

// WithStaticDir serves a built frontend from dir.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithAllowedOrigins enables CORS for the given browser origins. "*" allows any.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = append(s.allowedOrigins, origins...) }
}

// New constructs the HTTP server with routes and middleware configured.
func New(store storage.TaskStore, authn *auth.Authenticator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	srv := &Server{
		engine: router,
		store:  store,
		authn:  authn,
		logger: logger,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if len(srv.allowedOrigins) > 0 {
		router.Use(corsMiddleware(srv.allowedOrigins))
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together. Every task
// route sits behind requireAuth.
func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	tarefas := s.engine.Group("/tarefas", s.requireAuth())
	{
		tarefas.GET("", s.handleListTasks)
		tarefas.POST("", s.handleCreateTask)
		tarefas.GET(":id", s.handleGetTask)
		tarefas.PUT(":id", s.handleUpdateTask)
		tarefas.DELETE(":id", s.handleDeleteTask)
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// taskID returns the trimmed id path parameter.
func taskID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}

// respondError logs the error and returns a JSON payload with msg.
func (s *Server) respondError(c *gin.Context, status int, msg string, err error) {
	log := logctx.From(c.Request.Context(), s.logger)
	if err != nil {
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "request failed",
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"erro": msg})
}

// respondStoreError maps a storage failure onto an HTTP status.
func (s *Server) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		s.respondError(c, http.StatusNotFound, msgTaskNotFound, err)
	case errors.Is(err, models.ErrTitleRequired):
		s.respondError(c, http.StatusBadRequest, "Título é obrigatório", err)
	default:
		s.respondError(c, http.StatusInternalServerError, "Erro interno do servidor", err)
	}
}

// respondRejection writes the response for a failed auth check. Token
// failures carry an RFC 6750 challenge; the error code is omitted when no
// credentials were sent.
func (s *Server) respondRejection(c *gin.Context, rej *auth.Rejection) {
	if rej.Kind.Unauthenticated() {
		challenge := `Bearer realm="tarefas"`
		if rej.Kind != auth.KindMissingToken {
			challenge += `, error="invalid_token", error_description="` + rej.Kind.String() + `"`
		}
		c.Header("WWW-Authenticate", challenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"erro": rej.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"erro": rej.Message})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
