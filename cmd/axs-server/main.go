package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/store/memory"
	"github.com/axs360/access-engine/internal/axs/store/sqlite"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/cache"
	"github.com/axs360/access-engine/internal/config"
	"github.com/axs360/access-engine/internal/db"
	"github.com/axs360/access-engine/internal/grpcapi"
	"github.com/axs360/access-engine/internal/httpapi"
	"github.com/axs360/access-engine/internal/logging"
	"github.com/axs360/access-engine/internal/notify"
	"github.com/axs360/access-engine/internal/obs"
	"github.com/axs360/access-engine/internal/payments"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Service: "axs-server"}, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracerConfig{
		ServiceName: "axs-server",
		Version:     version,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing")
	}

	// Store
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}

	// Notifications
	var notifier notify.Notifier = notify.NewLog(logging.Component(logger, "notify"))
	if len(cfg.KafkaBrokers) > 0 {
		k, err := notify.NewKafka(notify.KafkaConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
		}, logging.Component(logger, "kafka"))
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka")
		}
		defer k.Close()
		notifier = k
	}

	// Stats cache
	var statsCache service.StatsCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		statsCache = cache.NewStatsCache(rdb, cfg.StatsCacheTTL)
	}

	// Services
	svcLog := logging.Component(logger, "service")
	validator := service.NewValidator()
	tokens := service.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	capacity := service.NewCapacityEvaluator(st, notifier, nil, svcLog)
	registry := service.NewPassRegistry(st, validator, notifier, svcLog)
	tracker := service.NewAccessTracker(st, tokens, capacity, notifier, service.TrackerConfig{
		OpTimeout:    cfg.OpTimeout,
		MaxClockSkew: cfg.MaxClockSkew,
		MaxScanAge:   cfg.MaxScanAge,
	}, svcLog)
	reporting := service.NewReporting(st, statsCache, svcLog)
	locations := service.NewLocationDirectory(st, validator, svcLog)

	if cfg.SeedDev && cfg.StoreDriver == "memory" {
		seedMemory(ctx, locations, logger)
	}

	sweeper := service.NewExpirySweeper(st, cfg.SweepInterval, logging.Component(logger, "sweeper"))
	sweeper.Start(ctx)

	// gRPC health
	grpcSrv := grpcapi.NewServer(st, logging.Component(logger, "grpc"))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
	}
	go grpcSrv.WatchHealth(ctx, 10*time.Second)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
			stop()
		}
	}()

	// Payments
	if cfg.AMQPURL != "" {
		consumer, err := payments.NewConsumer(payments.ConsumerConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,
			Keys:     []string{payments.RoutingKeySucceeded},
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq")
		}
		defer consumer.Close()
		handler := payments.NewHandler(registry, logging.Component(logger, "payments"))
		go func() {
			if err := consumer.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("payments consumer stopped")
				stop()
			}
		}()
	}

	// HTTP
	auth := httpapi.NewAuthenticator(cfg.JWTSecret)
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logging.Component(logger, "http"),
		Addr:      cfg.HTTPAddr,
		Auth:      auth,
		Registry:  registry,
		Tracker:   tracker,
		Capacity:  capacity,
		Reporting: reporting,
		Locations: locations,
		Tokens:    tokens,
		Health:    st,
	})

	if cfg.Dev() {
		logDevTokens(auth, logger)
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	sweeper.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
	closeStore()
}

// openStore returns the configured store and a func that releases it.
func openStore(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logging.Component(logger, "db"))
	if err != nil {
		return nil, nil, err
	}
	if cfg.SeedDev {
		if err := db.SeedDev(ctx, sqlDB, db.SeedDevOptions{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		logger.Info().Msg("seeded dev locations")
	}
	writer := db.NewWorker(sqlDB)
	return sqlite.New(sqlDB, writer), func() {
		writer.Close()
		_ = sqlDB.Close()
	}, nil
}

func seedMemory(ctx context.Context, locations *service.LocationDirectory, logger *zerolog.Logger) {
	for _, l := range db.DefaultDevLocations {
		hard := l.HardCapacity
		_, err := locations.Register(ctx, types.LocationRequest{
			ID:            l.ID,
			BusinessID:    l.BusinessID,
			Name:          l.Name,
			Kind:          types.LocationKind(l.Kind),
			Capacity:      l.Capacity,
			ReentryPolicy: types.ReentryPolicy(l.ReentryPolicy),
			HardCapacity:  &hard,
		})
		if err != nil {
			logger.Warn().Err(err).Str("location_id", l.ID).Msg("seed location")
		}
	}
	logger.Info().Int("locations", len(db.DefaultDevLocations)).Msg("seeded dev locations")
}

// logDevTokens prints a bearer token per role so the API can be tried with
// curl against the seeded locations.
func logDevTokens(auth *httpapi.Authenticator, logger *zerolog.Logger) {
	for _, p := range []types.Principal{
		{UserID: "user_dev", Role: types.RoleUser},
		{UserID: "biz_dev_manager", BusinessID: "biz_dev", Role: types.RoleBusiness},
		{UserID: "gate_dev", BusinessID: "biz_dev", Role: types.RoleScanner},
		{UserID: "admin_dev", Role: types.RoleAdmin},
	} {
		tok, err := auth.Sign(p, 24*time.Hour)
		if err != nil {
			logger.Warn().Err(err).Msg("sign dev token")
			return
		}
		logger.Info().Str("role", string(p.Role)).Str("token", tok).Msg("dev token")
	}
}

