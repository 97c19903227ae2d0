package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/storytime/backend/internal/config"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/handlers"
	"github.com/storytime/backend/internal/middleware"
)

type Server struct {
	cfg     *config.Config
	db      database.Service
	handler *handlers.Handler
}

func New(cfg *config.Config, db database.Service, handler *handlers.Handler) *Server {
	return &Server{cfg: cfg, db: db, handler: handler}
}

// HTTPServer wraps the router in an http.Server listening on cfg.Port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(s.cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)

		// Public reads
		api.GET("/stories", s.handler.Story.GetStories)
		api.GET("/stories/:id", s.handler.Story.GetStory)
		api.GET("/stories/:id/rating", s.handler.Rating.GetRating)
		api.GET("/stories/:id/reviews", s.handler.Review.GetReviews)
		api.GET("/users/:id", s.handler.User.GetUserProfile)

		protected := api.Group("")
		protected.Use(middleware.Auth(s.db.GetDB(), []byte(s.cfg.JWTSecret)))
		{
			protected.GET("/me", s.handler.Auth.GetMe)
			protected.POST("/authors", s.handler.Auth.BecomeAuthor)

			protected.POST("/stories", s.handler.Story.CreateStory)
			protected.PATCH("/stories/:id", s.handler.Story.UpdateStory)
			protected.DELETE("/stories/:id", s.handler.Story.DeleteStory)

			protected.POST("/stories/:id/reaction", s.handler.Reaction.React)
			protected.PATCH("/stories/:id/reaction", s.handler.Reaction.UpdateReaction)
			protected.DELETE("/stories/:id/reaction", s.handler.Reaction.RemoveReaction)

			protected.POST("/stories/:id/rating", s.handler.Rating.Rate)
			protected.PATCH("/stories/:id/rating", s.handler.Rating.UpdateRating)
			protected.DELETE("/stories/:id/rating", s.handler.Rating.RemoveRating)

			protected.POST("/stories/:id/reviews", s.handler.Review.CreateReview)
			protected.PATCH("/stories/:id/reviews/:reviewId", s.handler.Review.UpdateReview)
			protected.DELETE("/stories/:id/reviews/:reviewId", s.handler.Review.DeleteReview)
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	stats := s.db.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
