package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photobox/internal/bootstrap"
	"photobox/internal/boothtoken"
	"photobox/internal/config"
	"photobox/internal/httpapi"
	"photobox/internal/hub"
	"photobox/internal/logging"
	"photobox/internal/realtime"
	"photobox/internal/supervisor"
	"photobox/internal/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "realtime-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	bootstrap.InitLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid config")
	}

	shutdownTelemetry := telemetry.Setup(serviceName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	rdb := bootstrap.OpenRedis(cfg.Redis)
	if rdb == nil {
		logging.Warn().Msg("redis.addr is empty; listeners only see writes made by this process")
	} else {
		defer rdb.Close()
	}
	_, subscriber := bootstrap.Feed(rdb)

	sessions, closeSessions, err := bootstrap.OpenSessions(cfg.Session, rdb)
	if err != nil {
		logging.Fatal().Err(err).Msg("open session store")
	}
	defer closeSessions()
	provider := bootstrap.NewProvider(st, sessions, cfg.Session)
	tokens := boothtoken.NewService(boothtoken.NewStoreFinder(st), boothtoken.Config{
		Secret: []byte(cfg.Token.Secret),
		TTL:    cfg.Token.TTL,
		Issuer: cfg.Token.Issuer,
	})

	h := hub.New()
	listeners := realtime.NewServer(h, st, realtime.NewAuth(provider, tokens))
	handler := httpapi.RealtimeRoutes(listeners.Handler(), httpapi.RealtimeConfig{
		RateLimit: httpapi.RateLimitConfig{
			IPPerMinute: cfg.Realtime.RateLimitPerMinute,
			IPBurst:     cfg.Realtime.RateLimitBurst,
		},
		CORSOrigins: cfg.Realtime.CORSOrigins,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Realtime.Port,
		Handler:     otelhttp.NewHandler(handler, serviceName),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	tree := supervisor.New(serviceName, supervisor.Config{})
	tree.Add(supervisor.NewHTTPServerService("realtime-http", server, 10*time.Second))
	tree.Add(supervisor.NewFuncService("changefeed", func(ctx context.Context) error {
		return h.Run(ctx, subscriber)
	}))

	logging.Info().Str("addr", server.Addr).Msg("realtime-service listening")
	if err := tree.Serve(ctx); err != nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
}
