// Package bootstrap opens the backends shared by the photobox binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"photobox/internal/changefeed"
	"photobox/internal/config"
	"photobox/internal/identity"
	"photobox/internal/logging"
	"photobox/internal/store"
	"photobox/internal/store/memory"
	"photobox/internal/store/mongo"
	"photobox/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func InitLogging(cfg config.LogConfig) {
	logging.Init(logging.Config{Level: cfg.Level, Format: cfg.Format, Caller: cfg.Caller})
}

// OpenStore connects the configured document backend. The returned func
// releases it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		return postgres.NewStore(pool), pool.Close, nil
	case "mongo":
		client, st, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		}, nil
	case "memory":
		logging.Warn().Msg("using the in-memory document store; data is lost on exit")
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}

// OpenPostgres is used by boothctl migrate, which needs the pool itself.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return pool, nil
}

// OpenRedis returns nil when no address is configured.
func OpenRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// Feed returns the change publisher and subscriber. Without redis the feed
// stays inside this process.
func Feed(rdb *redis.Client) (changefeed.Publisher, changefeed.Subscriber) {
	if rdb == nil {
		bus := changefeed.NewBus(256)
		return bus, bus
	}
	feed := changefeed.NewRedis(rdb, changefeed.DefaultChannel)
	return feed, feed
}

// OpenSessions builds the configured session backend.
func OpenSessions(cfg config.SessionConfig, rdb *redis.Client) (identity.SessionStore, func(), error) {
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis session backend needs redis.addr")
		}
		return identity.NewRedisSessionStore(rdb), func() {}, nil
	case "badger":
		db, err := identity.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return identity.NewBadgerSessionStore(db), func() { _ = db.Close() }, nil
	case "memory":
		return identity.NewMemorySessionStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownSession, cfg.Backend)
	}
}

func NewProvider(st store.Store, sessions identity.SessionStore, cfg config.SessionConfig) *identity.Provider {
	return identity.NewProvider(st, sessions, identity.Config{
		SessionTTL:   cfg.TTL,
		RefreshAfter: cfg.RefreshAfter,
	})
}
