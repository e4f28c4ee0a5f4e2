package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photobox/internal/account"
	"photobox/internal/authz"
	"photobox/internal/bootstrap"
	"photobox/internal/changefeed"
	"photobox/internal/config"
	"photobox/internal/httpapi"
	"photobox/internal/logging"
	"photobox/internal/recaptcha"
	"photobox/internal/resource"
	"photobox/internal/revenue"
	"photobox/internal/storage"
	"photobox/internal/supervisor"
	"photobox/internal/sweeper"
	"photobox/internal/telemetry"
	"photobox/internal/xendit"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "dashboard-service"

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

	base, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	rdb := bootstrap.OpenRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	publisher, _ := bootstrap.Feed(rdb)
	st := changefeed.Wrap(base, publisher)

	sessions, closeSessions, err := bootstrap.OpenSessions(cfg.Session, rdb)
	if err != nil {
		logging.Fatal().Err(err).Msg("open session store")
	}
	defer closeSessions()
	provider := bootstrap.NewProvider(st, sessions, cfg.Session)

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("load rbac policy")
	}
	bucket, err := storage.NewBucket(storage.Config{
		Root:           cfg.Storage.Root,
		PublicBaseURL:  cfg.Storage.PublicBaseURL,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("open object storage")
	}
	gateway := xendit.NewClient(xendit.Config{
		BaseURL:  cfg.Xendit.BaseURL,
		PageSize: cfg.Xendit.PageSize,
		Timeout:  cfg.Xendit.Timeout,
	})

	dashboard := &httpapi.Dashboard{
		Identity:    provider,
		Booths:      resource.NewBooths(st),
		Vouchers:    resource.NewVouchers(st),
		Backgrounds: resource.NewBackgrounds(st),
		Revenue:     revenue.NewService(st, gateway),
		Accounts:    account.NewService(st, provider),
		Images:      bucket,
		Files:       bucket.Handler(),
		Captcha: recaptcha.NewVerifier(recaptcha.Config{
			SecretKey: cfg.Recaptcha.SecretKey,
			VerifyURL: cfg.Recaptcha.VerifyURL,
			MinScore:  cfg.Recaptcha.MinScore,
		}),
		Authz: enforcer,
		Config: httpapi.DashboardConfig{
			RateLimit: httpapi.RateLimitConfig{
				IPPerMinute:    cfg.Dashboard.RateLimitPerMinute,
				IPBurst:        cfg.Dashboard.RateLimitBurst,
				OwnerPerMinute: cfg.Dashboard.OwnerRateLimitPerMinute,
				OwnerBurst:     cfg.Dashboard.OwnerRateLimitBurst,
			},
			CORSOrigins:    cfg.Dashboard.CORSOrigins,
			SSOSecret:      cfg.SSO.SharedSecret,
			RequireCaptcha: cfg.Recaptcha.RequireOnLogin,
		},
	}

	server := &http.Server{
		Addr:         ":" + cfg.Dashboard.Port,
		Handler:      otelhttp.NewHandler(dashboard.Routes(), serviceName),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.New(serviceName, supervisor.Config{})
	tree.Add(supervisor.NewHTTPServerService("dashboard-http", server, 10*time.Second))
	if cfg.Sweeper.Enabled {
		sw := sweeper.New(st, sweeper.Config{BatchSize: cfg.Sweeper.BatchSize})
		tree.Add(supervisor.NewFuncService("orphan-sweeper", func(ctx context.Context) error {
			sweeper.Start(ctx, cfg.Sweeper.Interval, sw)
			return ctx.Err()
		}))
	}

	logging.Info().Str("addr", server.Addr).Str("store", cfg.Store.Driver).Str("sessions", cfg.Session.Backend).Msg("dashboard-service listening")
	if err := tree.Serve(ctx); err != nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
}
