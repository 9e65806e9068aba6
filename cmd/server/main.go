package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "torrentstream/seedwarden/internal/api/http"
	"torrentstream/seedwarden/internal/app"
	"torrentstream/seedwarden/internal/cache"
	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/metrics"
	"torrentstream/seedwarden/internal/monitor"
	"torrentstream/seedwarden/internal/notifier"
	"torrentstream/seedwarden/internal/qbittorrent"
	mongorepo "torrentstream/seedwarden/internal/repository/mongo"
	"torrentstream/seedwarden/internal/telemetry"
)

const serviceName = "seedwarden"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	}, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("qbtURL", cfg.QBTURL),
		slog.Duration("interval", cfg.MonitorInterval),
		slog.Bool("autostart", cfg.MonitorAutostart),
		slog.Duration("optimizeInterval", cfg.OptimizeInterval),
		slog.Bool("alertHistory", cfg.MongoURI != ""),
		slog.Bool("statsCache", cfg.RedisURL != ""),
		slog.Bool("webhook", cfg.AlertWebhookURL != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := qbittorrent.New(qbittorrent.Config{
		URL:          cfg.QBTURL,
		Username:     cfg.QBTUsername,
		Password:     cfg.QBTPassword,
		Timeout:      cfg.QBTTimeout,
		UploadLimits: uploadLimits(cfg),
	}, logger)
	if err != nil {
		logger.Error("qbittorrent client init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hub := apihttp.NewEventHub(logger)
	go hub.Run()

	pauseDelay := cfg.PauseResumeDelay
	if pauseDelay == 0 {
		pauseDelay = -1
	}
	monitorOpts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithConfig(monitor.Config{
			Interval:         cfg.MonitorInterval,
			PauseResumeDelay: pauseDelay,
			OptimizeInterval: cfg.OptimizeInterval,
			StatsCacheTTL:    cfg.StatsCacheTTL,
		}),
		monitor.WithEventPublisher(hub),
	}

	var alertRepo *mongorepo.AlertRepository
	mongoClient := connectMongo(rootCtx, cfg, logger)
	if mongoClient != nil {
		alertRepo = mongorepo.NewAlertRepository(mongoClient, cfg.MongoDatabase)
		indexCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		if err := alertRepo.EnsureIndexes(indexCtx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		cancel()
		monitorOpts = append(monitorOpts, monitor.WithAlertRepository(alertRepo))
	}

	if statsCache := connectRedis(rootCtx, cfg, logger); statsCache != nil {
		monitorOpts = append(monitorOpts, monitor.WithStatsCache(statsCache))
	}

	if webhook := notifier.New(cfg.AlertWebhookURL, cfg.AlertWebhookToken, logger); webhook.Enabled() {
		monitorOpts = append(monitorOpts, monitor.WithNotifier(webhook))
	}

	mon := monitor.New(client, monitorOpts...)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithEventHub(hub),
		apihttp.WithBaseContext(rootCtx),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}
	if alertRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithAlertRepository(alertRepo))
	}
	handler := apihttp.NewServer(mon, serverOpts...)

	if cfg.MonitorAutostart {
		mon.Start(rootCtx, cfg.MonitorInterval)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mon.Stop()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// connectMongo returns nil when alert history is disabled or unreachable;
// the monitor runs fine without it.
func connectMongo(ctx context.Context, cfg app.Config, logger *slog.Logger) *mongo.Client {
	uri := strings.TrimSpace(cfg.MongoURI)
	if uri == "" {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, uri, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, alert history disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, alert history disabled", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return nil
	}
	logger.Info("mongo connected", slog.String("db", cfg.MongoDatabase))
	return client
}

func connectRedis(ctx context.Context, cfg app.Config, logger *slog.Logger) *cache.RedisStatsCache {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, stats cache disabled", slog.String("error", err.Error()))
		return nil
	}
	statsCache := cache.NewRedisStatsCache(redis.NewClient(redisOpts), cache.StatsKey(cfg.QBTURL))
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := statsCache.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable, stats cache disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected",
		slog.String("addr", redisOpts.Addr),
		slog.String("key", cache.StatsKey(cfg.QBTURL)))
	return statsCache
}

// uploadLimits applies per-tier limits only when at least one is set, so an
// unconfigured deployment never overrides limits chosen in the client.
func uploadLimits(cfg app.Config) map[domain.PriorityTier]int64 {
	if cfg.UploadLimitHigh == 0 && cfg.UploadLimitNormal == 0 && cfg.UploadLimitLow == 0 {
		return nil
	}
	return map[domain.PriorityTier]int64{
		domain.PriorityHigh:   cfg.UploadLimitHigh,
		domain.PriorityNormal: cfg.UploadLimitNormal,
		domain.PriorityLow:    cfg.UploadLimitLow,
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
