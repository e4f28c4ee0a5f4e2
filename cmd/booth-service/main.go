package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photobox/internal/authz"
	"photobox/internal/bootstrap"
	"photobox/internal/boothtoken"
	"photobox/internal/config"
	"photobox/internal/httpapi"
	"photobox/internal/logging"
	"photobox/internal/recaptcha"
	"photobox/internal/resource"
	"photobox/internal/supervisor"
	"photobox/internal/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "booth-service"

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

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("load rbac policy")
	}

	api := &httpapi.BoothAPI{
		Tokens: boothtoken.NewService(boothtoken.NewStoreFinder(st), boothtoken.Config{
			Secret: []byte(cfg.Token.Secret),
			TTL:    cfg.Token.TTL,
			Issuer: cfg.Token.Issuer,
		}),
		Captcha: recaptcha.NewVerifier(recaptcha.Config{
			SecretKey: cfg.Recaptcha.SecretKey,
			VerifyURL: cfg.Recaptcha.VerifyURL,
			MinScore:  cfg.Recaptcha.MinScore,
		}),
		Booths:      resource.NewBooths(st),
		Vouchers:    resource.NewVouchers(st),
		Backgrounds: resource.NewBackgrounds(st),
		Authz:       enforcer,
		Config: httpapi.BoothConfig{
			RateLimit: httpapi.RateLimitConfig{
				IPPerMinute: cfg.Booth.RateLimitPerMinute,
				IPBurst:     cfg.Booth.RateLimitBurst,
			},
			CORSOrigins: cfg.Booth.CORSOrigins,
		},
	}

	server := &http.Server{
		Addr:         ":" + cfg.Booth.Port,
		Handler:      otelhttp.NewHandler(api.Routes(), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.New(serviceName, supervisor.Config{})
	tree.Add(supervisor.NewHTTPServerService("booth-http", server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("booth-service listening")
	if err := tree.Serve(ctx); err != nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
}
