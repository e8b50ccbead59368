package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"calendar-console/internal/app"
	"calendar-console/internal/backend"
	"calendar-console/internal/config"
	"calendar-console/internal/console"
	"calendar-console/internal/eventsink"
	"calendar-console/internal/feed"
	"calendar-console/internal/gcal"
	"calendar-console/internal/kv"
	"calendar-console/internal/server"
	"calendar-console/internal/store"
	"calendar-console/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kvs, closeKV, err := openKV(ctx, cfg.KV)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.KV.Driver).Msg("open key-value store")
	}
	defer closeKV()

	client := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	}, backend.StoredToken{KV: kvs})

	calStore := store.New()
	calCfg := syncer.Config{
		Interval: cfg.Sync.CalendarInterval,
		Feed:     feed.New(cfg.Feed.Capacity),
	}
	if sink := eventsink.NewKafka(eventsink.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, logger); sink != nil {
		defer sink.Close()
		calCfg.Sink = sink
	}
	calendarSync := syncer.New(client, calStore, logger.With().Str("view", "calendar").Logger(), calCfg)

	bellLogger := logger.With().Str("view", "bell").Logger()
	bellSync := syncer.New(client, store.New(), bellLogger, syncer.Config{
		Interval: cfg.Sync.BellInterval,
		Chime: func() error {
			bellLogger.Info().Msg("new booking arrived")
			return nil
		},
	})

	ctrl := console.New(client, calStore, calendarSync, logger.With().Str("component", "console").Logger(), console.Config{})

	a := &app.App{
		Calendar: calendarSync,
		Bell:     bellSync,
		Console:  ctrl,
		Catalog:  client,
		KV:       kvs,
		Google: gcal.New(gcal.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, kvs),
		GoogleCalendarID: cfg.Google.CalendarID,
		Roles:            cfg.Auth.Roles,
		Logger:           logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	a.Routes(router, app.AuthConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		StaticTokens: cfg.Auth.StaticTokens,
		Roles:        cfg.Auth.Roles,
	})

	go calendarSync.Run(ctx)
	go bellSync.Run(ctx)

	if err := server.Run(ctx, router, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server")
	}
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "calendar-console").Logger()
}

func openKV(ctx context.Context, cfg config.KV) (kv.Store, func(), error) {
	switch cfg.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return kv.NewRedis(rdb, cfg.Prefix), func() { _ = rdb.Close() }, nil
	case "postgres":
		pg, err := kv.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return kv.NewMemory(), func() {}, nil
	}
}
