package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Dashboard ServerConfig    `koanf:"dashboard"`
	Booth     ServerConfig    `koanf:"booth"`
	Realtime  ServerConfig    `koanf:"realtime"`
	Store     StoreConfig     `koanf:"store"`
	Session   SessionConfig   `koanf:"session"`
	Redis     RedisConfig     `koanf:"redis"`
	Token     TokenConfig     `koanf:"token"`
	Xendit    XenditConfig    `koanf:"xendit"`
	Recaptcha RecaptchaConfig `koanf:"recaptcha"`
	Storage   StorageConfig   `koanf:"storage"`
	Sweeper   SweeperConfig   `koanf:"sweeper"`
	SSO       SSOConfig       `koanf:"sso"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port                    string   `koanf:"port"`
	RateLimitPerMinute      int      `koanf:"rate_limit_per_minute"`
	RateLimitBurst          int      `koanf:"rate_limit_burst"`
	OwnerRateLimitPerMinute int      `koanf:"owner_rate_limit_per_minute"`
	OwnerRateLimitBurst     int      `koanf:"owner_rate_limit_burst"`
	CORSOrigins             []string `koanf:"cors_origins"`
}

type StoreConfig struct {
	Driver        string `koanf:"driver"`
	DatabaseURL   string `koanf:"database_url"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`
}

type SessionConfig struct {
	Backend      string        `koanf:"backend"`
	TTL          time.Duration `koanf:"ttl"`
	RefreshAfter time.Duration `koanf:"refresh_after"`
	BadgerPath   string        `koanf:"badger_path"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
	Issuer string        `koanf:"issuer"`
}

type XenditConfig struct {
	BaseURL  string        `koanf:"base_url"`
	PageSize int           `koanf:"page_size"`
	Timeout  time.Duration `koanf:"timeout"`
}

type RecaptchaConfig struct {
	SecretKey      string  `koanf:"secret_key"`
	SiteKey        string  `koanf:"site_key"`
	VerifyURL      string  `koanf:"verify_url"`
	MinScore       float64 `koanf:"min_score"`
	RequireOnLogin bool    `koanf:"require_on_login"`
}

type StorageConfig struct {
	Root           string `koanf:"root"`
	PublicBaseURL  string `koanf:"public_base_url"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

type SweeperConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval"`
	BatchSize int           `koanf:"batch_size"`
}

type SSOConfig struct {
	SharedSecret string `koanf:"shared_secret"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

var defaultConfigPaths = []string{"photobox.yaml", "config/photobox.yaml", "/etc/photobox/photobox.yaml"}

func defaultConfig() Config {
	return Config{
		Dashboard: ServerConfig{
			Port:                    "8083",
			RateLimitPerMinute:      120,
			RateLimitBurst:          30,
			OwnerRateLimitPerMinute: 300,
			OwnerRateLimitBurst:     60,
		},
		Booth: ServerConfig{
			Port:               "8084",
			RateLimitPerMinute: 30,
			RateLimitBurst:     10,
		},
		Realtime: ServerConfig{
			Port:               "8085",
			RateLimitPerMinute: 120,
			RateLimitBurst:     30,
		},
		Store: StoreConfig{
			Driver:        "postgres",
			MongoDatabase: "photobox",
		},
		Session: SessionConfig{
			Backend:      "redis",
			TTL:          8 * time.Hour,
			RefreshAfter: 15 * time.Minute,
			BadgerPath:   "data/sessions",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Token: TokenConfig{
			TTL:    12 * time.Hour,
			Issuer: "photobox-booth",
		},
		Xendit: XenditConfig{
			BaseURL:  "https://api.xendit.co",
			PageSize: 100,
			Timeout:  10 * time.Second,
		},
		Recaptcha: RecaptchaConfig{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			MinScore:  0.5,
		},
		Storage: StorageConfig{
			Root:           "data/objects",
			PublicBaseURL:  "http://localhost:8083/files",
			MaxUploadBytes: 10 << 20,
		},
		Sweeper: SweeperConfig{
			Enabled:   true,
			Interval:  time.Hour,
			BatchSize: 200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env, then defaults, an optional YAML file, and the environment, in that order.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	for _, key := range []string{"dashboard.cors_origins", "booth.cors_origins", "realtime.cors_origins"} {
		if raw, ok := k.Get(key).(string); ok {
			_ = k.Set(key, splitList(raw))
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv("PHOTOBOX_CONFIG"); path != "" {
		return path
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"dashboard_port":                      "dashboard.port",
	"dashboard_rate_limit_per_min":        "dashboard.rate_limit_per_minute",
	"dashboard_rate_limit_burst":          "dashboard.rate_limit_burst",
	"dashboard_owner_rate_limit_per_min":  "dashboard.owner_rate_limit_per_minute",
	"dashboard_owner_rate_limit_burst":    "dashboard.owner_rate_limit_burst",
	"dashboard_cors_origins":              "dashboard.cors_origins",
	"booth_port":                          "booth.port",
	"booth_rate_limit_per_min":            "booth.rate_limit_per_minute",
	"booth_rate_limit_burst":              "booth.rate_limit_burst",
	"booth_cors_origins":                  "booth.cors_origins",
	"realtime_port":                       "realtime.port",
	"realtime_rate_limit_per_min":         "realtime.rate_limit_per_minute",
	"realtime_rate_limit_burst":           "realtime.rate_limit_burst",
	"realtime_cors_origins":               "realtime.cors_origins",
	"store_driver":                        "store.driver",
	"db_dsn":                              "store.database_url",
	"mongo_uri":                           "store.mongo_uri",
	"mongo_database":                      "store.mongo_database",
	"session_backend":                     "session.backend",
	"session_ttl":                         "session.ttl",
	"session_refresh_after":               "session.refresh_after",
	"session_badger_path":                 "session.badger_path",
	"redis_addr":                          "redis.addr",
	"redis_password":                      "redis.password",
	"redis_db":                            "redis.db",
	"booth_token_secret":                  "token.secret",
	"booth_token_ttl":                     "token.ttl",
	"booth_token_issuer":                  "token.issuer",
	"xendit_base_url":                     "xendit.base_url",
	"xendit_page_size":                    "xendit.page_size",
	"xendit_timeout":                      "xendit.timeout",
	"recaptcha_secret_key":                "recaptcha.secret_key",
	"recaptcha_site_key":                  "recaptcha.site_key",
	"recaptcha_verify_url":                "recaptcha.verify_url",
	"recaptcha_min_score":                 "recaptcha.min_score",
	"recaptcha_require_on_login":          "recaptcha.require_on_login",
	"storage_root":                        "storage.root",
	"storage_public_base_url":             "storage.public_base_url",
	"storage_max_upload_bytes":            "storage.max_upload_bytes",
	"sweeper_enabled":                     "sweeper.enabled",
	"sweeper_interval":                    "sweeper.interval",
	"sweeper_batch_size":                  "sweeper.batch_size",
	"sso_shared_secret":                   "sso.shared_secret",
	"log_level":                           "log.level",
	"log_format":                          "log.format",
	"log_caller":                          "log.caller",
}

// Unmapped variables return "" so koanf skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	ErrMissingDatabaseURL = errors.New("store.database_url is required for the postgres driver")
	ErrMissingMongoURI    = errors.New("store.mongo_uri is required for the mongo driver")
	ErrUnknownDriver      = errors.New("unknown store driver")
	ErrUnknownSession     = errors.New("unknown session backend")
	ErrMissingSecret      = errors.New("token.secret is required")
)

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return ErrMissingMongoURI
		}
	case "memory":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	switch c.Session.Backend {
	case "redis", "badger", "memory":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSession, c.Session.Backend)
	}
	if len(c.Token.Secret) < 16 {
		return ErrMissingSecret
	}
	return nil
}
