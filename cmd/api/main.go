package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/config"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/handlers"
	"github.com/storytime/backend/internal/server"
	"github.com/storytime/backend/internal/services"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	store, closeStore := openCache(cfg)
	defer closeStore()

	publisher, closePublisher := openEvents(cfg)
	defer closePublisher()

	gormDB := db.GetDB()
	listing := cache.NewListing(store, cfg.ListingCacheTTL)
	handler := handlers.NewHandler(handlers.Deps{
		DB:        gormDB,
		JWTSecret: []byte(cfg.JWTSecret),
		PageSize:  cfg.PageSize,
		Stories:   services.NewStoryService(gormDB, listing, publisher, cfg.PageSize),
		Reactions: services.NewReactionEngine(gormDB, listing, publisher),
		Ratings:   services.NewRatingEngine(gormDB, listing, publisher),
		Reviews:   services.NewReviewEngine(gormDB, listing, publisher, cfg.ReviewEditWindow),
	})

	srv := server.New(cfg, db, handler).HTTPServer()

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// openCache connects to Redis when REDIS_ADDR is set and falls back to a
// process-local store otherwise.
func openCache(cfg *config.Config) (cache.Store, func()) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, using in-memory listing cache")
		return cache.NewMemoryStore(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-memory listing cache")
		return cache.NewMemoryStore(), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("closing redis")
		}
	}
}

// openEvents connects to NATS when NATS_URL is set. Engagement events are
// also traced at debug level from a local subscription.
func openEvents(cfg *config.Config) (events.Publisher, func()) {
	if cfg.NatsURL == "" {
		return events.Nop{}, func() {}
	}

	pub, err := events.NewNatsPublisher(cfg.NatsURL)
	if err != nil {
		log.WithError(err).Warn("nats unavailable, engagement events disabled")
		return events.Nop{}, func() {}
	}

	if _, err := pub.Subscribe(func(subject string, event events.Event) {
		log.WithFields(log.Fields{
			"subject":  subject,
			"story_id": event.StoryID,
			"action":   event.Action,
		}).Debug("engagement event")
	}); err != nil {
		log.WithError(err).Warn("nats trace subscription failed")
	}
	return pub, pub.Close
}
