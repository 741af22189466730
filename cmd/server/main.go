/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the paid-leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (YAML file, .env, YUKYU_* variables)
  2. Open the store (SQLite or PostgreSQL) and migrate
  3. Build cache, metrics, audit sinks and services
  4. Seed the default AppConfig when no version is active
  5. Start the scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running job)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close audit sinks and the database

EXAMPLES:
  # SQLite file database with defaults
  ./server

  # PostgreSQL via environment
  YUKYU_DATABASE_DRIVER=postgres YUKYU_DATABASE_DSN=postgres://... ./server

SEE ALSO:
  - config/config.go: Every setting and its default
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/yukyu/api"
	"github.com/warp/yukyu/audit"
	"github.com/warp/yukyu/cache"
	"github.com/warp/yukyu/config"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/metrics"
	"github.com/warp/yukyu/store/postgres"
	"github.com/warp/yukyu/store/sqlite"
	"github.com/warp/yukyu/store/sqlstore"
	"github.com/warp/yukyu/vacation"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := config.NewLogger(conf.Logger, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, conf.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", conf.Database.Driver).Msg("failed to initialize database")
	}
	defer store.Close()

	prom := metrics.New(conf.Metrics.Enabled)
	configCache := cache.NewInstrumented(cache.New(cache.Options{
		Enabled:    conf.Cache.Enabled,
		SizeMB:     conf.Cache.SizeMB,
		TTLSeconds: conf.Cache.TTLSeconds,
	}, logger), prom)

	recorder, err := buildAudit(conf.Kafka, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize audit")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close audit sinks")
		}
	}()

	configs := vacation.NewConfigService(store, configCache, logger)
	if err := seedDefaultConfig(ctx, configs); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed default config")
	}

	generator := vacation.NewLotGenerator(store, configs, recorder, logger)
	sweeper := vacation.NewSweeper(store, logger)
	requests := vacation.NewRequestService(store, configs, recorder, logger)
	requests.Admins = make(map[string]bool, len(conf.Requests.Admins))
	for _, a := range conf.Requests.Admins {
		requests.Admins[a] = true
	}
	stats := vacation.NewStatsService(store, configs)

	expireH, expireM, _ := config.ParseClock(conf.Scheduler.ExpireAt)
	grantH, grantM, _ := config.ParseClock(conf.Scheduler.GrantAt)
	locker, closeLocker := buildLocker(conf.Redis, logger)
	defer closeLocker()

	scheduler := api.NewScheduler(generator, sweeper, api.SchedulerOptions{
		ExpireAt: api.Clock{Hour: expireH, Minute: expireM},
		GrantAt:  api.Clock{Hour: grantH, Minute: grantM},
		Location: conf.Location(),
		LockTTL:  conf.Redis.LockTTL,
		Locker:   locker,
		Metrics:  prom,
	}, logger)
	if conf.Scheduler.Enabled {
		scheduler.Start(ctx)
	}

	handler := api.NewHandler(api.Services{
		Store:     store,
		Configs:   configs,
		Generator: generator,
		Requests:  requests,
		Stats:     stats,
		Scheduler: scheduler,
		Location:  conf.Location(),
	}, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: conf.Server.CORSOrigins,
		Metrics:     prom,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         conf.Server.Addr(),
		Handler:      router,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", conf.Database.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, db config.Database) (*sqlstore.Store, error) {
	switch db.Driver {
	case "postgres":
		return postgres.New(ctx, db.DSN, postgres.Options{
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLife,
		})
	default:
		if db.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(db.DSN), 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.New(db.DSN)
	}
}

// buildAudit writes to the database and, when brokers are configured, to Kafka.
func buildAudit(k config.Kafka, store vacation.AuditStore, logger zerolog.Logger) (*audit.Multi, error) {
	primary := audit.NewStoreRecorder(store)
	if len(k.Brokers) == 0 {
		return audit.NewMulti(logger, primary), nil
	}
	kafkaRecorder, err := audit.NewKafkaRecorder(audit.KafkaConfig{
		Brokers:     k.Brokers,
		Topic:       k.Topic,
		MaxAttempts: k.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("brokers", k.Brokers).Str("topic", k.Topic).Msg("kafka audit stream enabled")
	return audit.NewMulti(logger, primary, kafkaRecorder), nil
}

func buildLocker(r config.Redis, logger zerolog.Logger) (api.Locker, func()) {
	if r.Addr == "" {
		return api.NoopLocker{}, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
	logger.Info().Str("addr", r.Addr).Msg("redis job lock enabled")
	return api.NewRedisLocker(rdb), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}

// seedDefaultConfig stores and activates the statutory default when no
// version is active yet.
func seedDefaultConfig(ctx context.Context, configs *vacation.ConfigService) error {
	_, err := configs.Active(ctx)
	if !generic.IsNotFound(err) {
		return err
	}
	cfg := vacation.DefaultAppConfig()
	return configs.Save(ctx, cfg.Version, &cfg, true)
}
