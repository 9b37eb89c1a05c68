package main

import (
	"context"
	"flag"
	"strconv"
	"strings"
	"time"

	"threadboard/internal/config"
	"threadboard/internal/database"
	"threadboard/internal/utils"
	"threadboard/simulator"

	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	utils.ConfigureLogging(cfg.Log.Level, cfg.Log.Format)

	simConfig := simulator.SimConfig{
		NumWorkers:   5,
		TickInterval: 500 * time.Millisecond,
		ZipfS:        1.07,
	}
	flag.IntVar(&simConfig.NumUsers, "users", 50, "number of simulated users")
	flag.DurationVar(&simConfig.SimulationTime, "duration", 10*time.Minute, "how long to run")
	flag.Float64Var(&simConfig.PostFrequency, "posts", 100, "posts per user per hour")
	flag.Float64Var(&simConfig.CommentFrequency, "comments", 200, "comments per user per hour")
	flag.Float64Var(&simConfig.ReadFrequency, "reads", 600, "page reads per user per hour")
	flag.StringVar(&simConfig.EngineURL, "url", "http://localhost:"+strconv.Itoa(cfg.Server.Port), "server base URL")
	flag.Parse()

	if database.DatabaseType(strings.ToLower(cfg.Database.Type)) == database.TypeMemory {
		log.Fatal("The simulator seeds users into the server's database; DB_TYPE=memory cannot be shared")
	}

	store, err := database.NewStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close(context.Background())

	log.WithFields(log.Fields{
		"url":      simConfig.EngineURL,
		"users":    simConfig.NumUsers,
		"duration": simConfig.SimulationTime,
		"posts":    simConfig.PostFrequency,
		"comments": simConfig.CommentFrequency,
		"reads":    simConfig.ReadFrequency,
		"zipf_s":   simConfig.ZipfS,
		"database": cfg.Database.Name,
	}).Info("Starting simulation")

	sim := simulator.NewSimulator(simConfig, store)
	ctx, cancel := context.WithTimeout(context.Background(), simConfig.SimulationTime)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	metrics := sim.GetMetrics()
	log.WithFields(log.Fields{
		"users":         metrics.TotalUsers,
		"posts":         metrics.TotalPosts,
		"comments":      metrics.TotalComments,
		"reads":         metrics.TotalReads,
		"cache_hits":    metrics.CacheHits,
		"errors":        metrics.ErrorCount,
		"avg_latency":   metrics.AverageLatency.String(),
		"known_threads": metrics.KnownThreads,
	}).Info("Simulation completed")
}
