// Package main is the entry point for the feedrank API server.
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
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/studysync/feedrank/internal/api"
	"github.com/studysync/feedrank/internal/auth"
	"github.com/studysync/feedrank/internal/bus"
	"github.com/studysync/feedrank/internal/config"
	"github.com/studysync/feedrank/internal/dedup"
	"github.com/studysync/feedrank/internal/health"
	"github.com/studysync/feedrank/internal/hydration"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/pipeline"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/recommend"
	"github.com/studysync/feedrank/internal/score"
	"github.com/studysync/feedrank/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Feedrank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
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

	// Tracing is opt-in via the standard OTLP environment variables.
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "feedrank-api",
		Enabled:      os.Getenv("TRACING_ENABLED") == "true",
		Environment:  cfg.Env,
		ExporterType: os.Getenv("TRACING_EXPORTER"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		// Readiness reports the outage; the server still starts so probes work.
		logger.Warn("database not reachable at startup", "error", err)
	}
	cancel()

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

	streamsCfg := bus.DefaultStreamsConfig()
	streamsCfg.Partitions = cfg.Partitions
	ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bus.EnsureStreams(ensureCtx, conn.JetStream(), streamsCfg); err != nil {
		logger.Warn("failed to provision streams", "error", err)
	}
	cancel()

	// Stores and services
	scores := score.NewPostgresStore(db, logger)
	interactions := interaction.NewPostgresStore(db)
	preferences := preference.NewPostgresStore(db)
	guard := dedup.NewRedisGuard(redisClient, cfg.DedupRetention(), logger)
	index := ranking.NewRedisIndex(redisClient)
	rankings := ranking.NewService(index, scores, logger)
	engine := score.NewEngine(scores, cfg.Weights(), logger)
	publisher := bus.NewPublisher(conn.JetStream(), cfg.Partitions)
	scorer := recommend.NewScorer(rankings, scores, interactions, preferences, publisher, cfg.RecommendConfig(), logger)
	hydrator := hydration.NewClient(cfg.HydrationURL, cfg.HydrationTimeout(), logger)
	currentSecret, previousSecret := cfg.GetJWTSecrets()
	jwtSvc := auth.NewJWTServiceWithRotation(currentSecret, previousSecret)

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("failed to register HTTP metrics", "error", err)
	}

	// Live dead-letter watch: mirror the dead-letter stream to websocket
	// subscribers. Best-effort; the endpoint just stays quiet without it.
	broadcaster := pipeline.NewBroadcaster()
	stopWatch := watchDeadLetters(context.Background(), conn.JetStream(), broadcaster, logger)
	defer stopWatch()

	healthCfg := api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(db),
		RedisChecker: health.NewRedisChecker(redisClient),
		NATSChecker:  conn,
	}
	if cfg.HydrationURL != "" {
		healthCfg.HydrationChecker = hydrator
	}

	router := api.NewRouter(api.Handlers{
		Interactions:    api.NewInteractionHandlers(interactions, engine, rankings, preferences, guard, publisher, scorer, logger),
		Recommendations: api.NewRecommendationHandlers(scorer, rankings, scores, hydrator, logger),
		Rankings:        api.NewRankingHandlers(rankings, cfg.AdminToken, logger),
		DeadLetters:     api.NewDeadLetterHandlers(broadcaster),
		Health:          api.NewHealthHandlers(healthCfg),
		Auth:            middleware.Auth(jwtSvc),
	})

	// Middleware chain: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.Tracing("feedrank-api")(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(router))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// watchDeadLetters feeds newly dead-lettered events to the broadcaster.
// Returns a stop function; on setup failure it logs and returns a no-op.
func watchDeadLetters(ctx context.Context, js jetstream.JetStream, broadcaster *pipeline.Broadcaster, logger *slog.Logger) func() {
	noop := func() {}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := js.Stream(setupCtx, bus.StreamDeadLetters)
	if err != nil {
		logger.Warn("dead-letter watch unavailable", "error", err)
		return noop
	}
	cons, err := stream.OrderedConsumer(setupCtx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		logger.Warn("dead-letter watch unavailable", "error", err)
		return noop
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var dl pipeline.DeadLetter
		if err := json.Unmarshal(msg.Data(), &dl); err != nil {
			logger.Warn("malformed dead-letter payload", "error", err)
			return
		}
		broadcaster.DeadLettered(&dl)
	})
	if err != nil {
		logger.Warn("dead-letter watch unavailable", "error", err)
		return noop
	}
	return cc.Stop
}
