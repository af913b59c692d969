package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int

	posts     PostStore
	comments  CommentStore
	generator CommentGenerator
	jobs      ExtractEnqueuer
}

// NewServer creates a new API server
func NewServer(port int, posts PostStore, comments CommentStore, generator CommentGenerator, jobs ExtractEnqueuer) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:      e,
		port:      port,
		posts:     posts,
		comments:  comments,
		generator: generator,
		jobs:      jobs,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Streaming comment generation, outside the versioned group so the
	// browser EventSource URL stays short.
	s.echo.GET("/comment/completion", s.streamCommentCompletion)

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	v1.POST("/posts", s.submitPost)
	v1.GET("/posts", s.getPosts)
	v1.GET("/posts/:id", s.getPostByID)
	v1.POST("/posts/:id/comment", s.generateComment)
	v1.GET("/comments/:id", s.getCommentByID)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
