package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/user/healthwatch/internal/adapter/api"
	"github.com/user/healthwatch/internal/adapter/api/handler"
	"github.com/user/healthwatch/internal/adapter/docker"
	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/adapter/notifier"
	"github.com/user/healthwatch/internal/adapter/repository/journal"
	"github.com/user/healthwatch/internal/adapter/repository/postgres"
	redisrepo "github.com/user/healthwatch/internal/adapter/repository/redis"
	"github.com/user/healthwatch/internal/alert"
	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/lifecycle"
	"github.com/user/healthwatch/internal/pkg/config"
	"github.com/user/healthwatch/internal/pkg/logger"
	"github.com/user/healthwatch/internal/recorder"
	"github.com/user/healthwatch/internal/scheduler"
	"github.com/user/healthwatch/internal/status"

	_ "github.com/lib/pq" // Keep for postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Start Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())

	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}

	// --- Optional Redis Fan-Out ---
	var pub *redisrepo.Publisher
	var sink domain.Publisher
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, fan-out will stay local until it recovers", "error", err)
		}
		pub = redisrepo.NewPublisher(redisClient, logger)
		go pub.StartHealthCheck(ctx, 5*time.Second)
		sink = pub
	} else {
		logger.Info("no redis address configured, external fan-out disabled")
	}

	// --- Event Journal and History Store ---
	eventJournal, err := journal.New(cfg.JournalDir, cfg.JournalSegmentSize, cfg.JournalMaxDiskSize, logger)
	if err != nil {
		logger.Error("failed to initialize event journal", "error", err)
		os.Exit(1)
	}
	defer eventJournal.Close()

	configRepo := postgres.NewConfigRepository(db, logger)
	historyRepo := postgres.NewHistoryRepository(db, logger)

	// --- Core Pipeline ---
	hub := broadcast.NewHub(logger, sink, m)
	rec := recorder.New(logger, historyRepo, eventJournal, hub, m, cfg.EventBufferSize)
	tracker := status.NewTracker(logger)
	evaluator := alert.NewEvaluator(logger, configRepo, historyRepo, notifier.NewSlogNotifier(logger), rec, hub, m)
	if err := evaluator.Restore(ctx); err != nil {
		logger.Error("failed to restore open alerts", "error", err)
		os.Exit(1)
	}

	// The recorder outlives the scheduler so in-flight probes can still
	// record their results during shutdown.
	recCtx, recCancel := context.WithCancel(context.Background())
	defer recCancel()
	go rec.Run(recCtx)

	// --- Container Runtime ---
	dockerClient := docker.NewClient(cfg.DockerSocket, logger)
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	dockerUp := dockerClient.Available(pingCtx)
	cancelPing()

	sched := scheduler.New(logger, configRepo, dockerClient, tracker, evaluator, rec, hub, m, scheduler.Options{
		TickInterval:   cfg.TickInterval,
		Workers:        cfg.CheckWorkers,
		ProbesPerSec:   cfg.ProbesPerSec,
		ReloadInterval: cfg.ReloadInterval,
	})
	if err := sched.Reload(ctx); err != nil {
		logger.Error("failed to load target definitions", "error", err)
		os.Exit(1)
	}

	if dockerUp {
		monitor := lifecycle.NewMonitor(logger, dockerClient, configRepo, tracker, rec, hub)
		go monitor.Run(ctx)
	} else {
		logger.Info("container runtime unreachable, lifecycle monitoring disabled", "socket", cfg.DockerSocket)
	}

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	rec.Record(domain.NewEvent(nil, domain.EventSystemStartup, domain.EventInfo, "monitor started", nil))

	// --- API Server ---
	statusHandler := handler.NewStatusHandler(logger, configRepo, tracker, sched, evaluator)
	wsHandler := handler.NewWSHandler(logger, hub)
	healthHandler := handler.NewHealthHandler(logger, db, pubsubHealth(pub), dockerHealth{dockerClient})

	apiServer := &http.Server{
		Addr:         cfg.APIServerAddr,
		Handler:      api.NewRouter(logger, statusHandler, wsHandler, healthHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	// Let in-flight probes finish, then flush the recorder.
	<-schedDone
	rec.Record(domain.NewEvent(nil, domain.EventSystemShutdown, domain.EventInfo, "monitor stopped", nil))
	recCancel()
	<-rec.Done()

	logger.Info("monitor shut down gracefully")
}

// dockerHealth adapts the runtime client's context-scoped reachability
// check to the health endpoint's flag interface.
type dockerHealth struct {
	client *docker.Client
}

func (d dockerHealth) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return d.client.Available(ctx)
}

// pubsubHealth hides the typed-nil publisher from the health endpoint.
func pubsubHealth(p *redisrepo.Publisher) handler.AvailabilityReporter {
	if p == nil {
		return nil
	}
	return p
}
