package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"threadboard/internal/cache"
	"threadboard/internal/config"
	"threadboard/internal/database"
	"threadboard/internal/handlers"
	"threadboard/internal/threads"
	"threadboard/internal/utils"
	"threadboard/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	utils.ConfigureLogging(cfg.Log.Level, cfg.Log.Format)

	metrics := utils.NewMetricsCollector()

	// Initialize store
	store, err := database.NewStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	err = store.EnsureIndexes(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// Initialize actor system and page cache
	system := actor.NewActorSystem()
	pages, err := cache.NewPageCache(system, cfg.Cache.Size, cfg.Cache.TTL)
	if err != nil {
		log.Fatalf("Failed to start page cache: %v", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	repo := threads.NewRepository(store, pages, metrics)
	repo.SetNotifier(hub)

	server := handlers.NewServer(repo, pages, metrics)
	server.Hub = hub
	server.RequestTimeout = cfg.Database.Timeout
	server.MetricsEnabled = cfg.Server.MetricsEnabled

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Routes(cfg.AllowedOrigins),
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":     httpServer.Addr,
			"database": cfg.Database.Type,
		}).Info("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	stopHub()
	pages.Stop()
	system.Shutdown()
	if err := store.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to close store")
	}
}
