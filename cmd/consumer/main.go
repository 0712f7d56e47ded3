// Package main is the entry point for the feedrank stream consumer. It
// drains the partitioned interaction and lifecycle streams and applies
// them to the score store and ranking index.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studysync/feedrank/internal/bus"
	"github.com/studysync/feedrank/internal/config"
	"github.com/studysync/feedrank/internal/dedup"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/pipeline"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file")
	rebuild := flag.Bool("rebuild", false, "rebuild the ranking index from the score store before consuming")
	flag.Parse()

	if *help {
		fmt.Println("Feedrank Stream Consumer")
		fmt.Println()
		fmt.Println("Usage: consumer [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	conn, err := bus.Connect(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	streamsCfg := bus.DefaultStreamsConfig()
	streamsCfg.Partitions = cfg.Partitions
	if err := bus.EnsureStreams(setupCtx, conn.JetStream(), streamsCfg); err != nil {
		logger.Error("failed to provision streams", "error", err)
		os.Exit(1)
	}

	// Stores and services
	scores := score.NewPostgresStore(db, logger)
	interactions := interaction.NewPostgresStore(db)
	preferences := preference.NewPostgresStore(db)
	guard := dedup.NewRedisGuard(redisClient, cfg.DedupRetention(), logger)
	index := ranking.NewRedisIndex(redisClient)
	rankings := ranking.NewService(index, scores, logger)
	engine := score.NewEngine(scores, cfg.Weights(), logger)
	publisher := bus.NewPublisher(conn.JetStream(), cfg.Partitions)

	if *rebuild {
		count, err := rankings.Rebuild(setupCtx)
		if err != nil {
			logger.Error("ranking rebuild failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ranking index rebuilt", "posts", count)
	}

	metrics := pipeline.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("failed to register pipeline metrics", "error", err)
	}

	interactionProc := pipeline.NewProcessor(
		pipeline.NewInteractionHandler(interactions, engine, rankings, preferences, logger),
		guard, publisher, logger,
		pipeline.WithRetryPolicy(cfg.MaxAttempts, cfg.RetryBackoff()),
		pipeline.WithMetrics(metrics),
	)
	lifecycleProc := pipeline.NewProcessor(
		pipeline.NewLifecycleHandler(engine, rankings, logger),
		guard, publisher, logger,
		pipeline.WithRetryPolicy(cfg.MaxAttempts, cfg.RetryBackoff()),
		pipeline.WithMetrics(metrics),
	)

	interactionSrc, err := bus.NewPartitionSource(setupCtx, conn.JetStream(), bus.InteractionSourceConfig(cfg.Partitions))
	if err != nil {
		logger.Error("failed to provision interaction consumers", "error", err)
		os.Exit(1)
	}
	lifecycleSrc, err := bus.NewPartitionSource(setupCtx, conn.JetStream(), bus.LifecycleSourceConfig(cfg.Partitions))
	if err != nil {
		logger.Error("failed to provision lifecycle consumers", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Liveness and metrics endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "feedrank-consumer"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("starting consumer metrics server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pool := pipeline.NewPool(interactionSrc, interactionProc, interactionSrc.Partitions(), cfg.Workers, logger)
		if err := pool.Run(ctx); err != nil {
			logger.Error("interaction pool stopped", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		pool := pipeline.NewPool(lifecycleSrc, lifecycleProc, lifecycleSrc.Partitions(), cfg.Workers, logger)
		if err := pool.Run(ctx); err != nil {
			logger.Error("lifecycle pool stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down consumer...")

	// Workers finish their in-flight deliveries before the pools return.
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server forced to shutdown", "error", err)
	}

	logger.Info("consumer stopped")
}
