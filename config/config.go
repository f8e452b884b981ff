// config/config.go
package config

import (
	"strings"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Config is read from the environment (and an optional .env file).
// Field names map to SNAKE_CASE variables unless a config tag says otherwise.
type Config struct {
	Port             string `config:"PORT"`
	GameServiceToken string `config:"GAME_SERVICE_TOKEN"`
	AllowedOrigins   string `config:"ALLOWED_ORIGINS"`

	StoreDriver string `config:"STORE_DRIVER"` // postgres | memory
	DatabaseURL string `config:"DATABASE_URL"`

	NotifierDriver string `config:"NOTIFIER_DRIVER"` // memory | redis
	RedisAddress   string `config:"REDIS_ADDRESS"`
	RedisPassword  string `config:"REDIS_PASSWORD"`

	AuthServiceURL string `config:"AUTH_SERVICE_URL"`
	SyncServiceURL string `config:"SYNC_SERVICE_URL"`

	BattleDurationSeconds     int `config:"BATTLE_DURATION_SECONDS"`
	QueueEntryTTLSeconds      int `config:"QUEUE_ENTRY_TTL_SECONDS"`
	QueueEvictIntervalSeconds int `config:"QUEUE_EVICT_INTERVAL_SECONDS"`
	SubscriptionPollSeconds   int `config:"SUBSCRIPTION_POLL_SECONDS"`

	LogLevel  string `config:"LOG_LEVEL"`
	LogPretty bool   `config:"LOG_PRETTY"`

	CloudflareAccountID string `config:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `config:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `config:"R2_ACCESS_KEY_SECRET"`
	R2BucketName        string `config:"R2_BUCKET_NAME"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	NotifierDriverMemory = "memory"
	NotifierDriverRedis  = "redis"
)

// Default holds the values used when a variable is unset.
var Default = Config{
	Port:                      "5200",
	AllowedOrigins:            "http://localhost:3000",
	StoreDriver:               StoreDriverPostgres,
	NotifierDriver:            NotifierDriverMemory,
	RedisAddress:              "localhost:6379",
	BattleDurationSeconds:     900,
	QueueEntryTTLSeconds:      1800,
	QueueEvictIntervalSeconds: 60,
	SubscriptionPollSeconds:   5,
	LogLevel:                  "info",
}

// Load reads .env (when present) and the process environment on top of Default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("⚠️  No .env file found, reading environment variables directly")
	}
	cfg := Default
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "read environment")
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting that makes the service unable to start.
func (c Config) Validate() error {
	if c.GameServiceToken == "" {
		return eris.New("GAME_SERVICE_TOKEN environment variable not set")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return eris.New("DATABASE_URL environment variable not set")
		}
	case StoreDriverMemory:
	default:
		return eris.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.NotifierDriver {
	case NotifierDriverMemory, NotifierDriverRedis:
	default:
		return eris.Errorf("unknown NOTIFIER_DRIVER %q", c.NotifierDriver)
	}
	if c.BattleDurationSeconds <= 0 {
		return eris.New("BATTLE_DURATION_SECONDS must be positive")
	}
	if c.QueueEntryTTLSeconds < 0 {
		return eris.New("QUEUE_ENTRY_TTL_SECONDS must not be negative")
	}
	if c.QueueEvictIntervalSeconds <= 0 || c.SubscriptionPollSeconds <= 0 {
		return eris.New("QUEUE_EVICT_INTERVAL_SECONDS and SUBSCRIPTION_POLL_SECONDS must be positive")
	}
	return nil
}

func (c Config) BattleDuration() time.Duration {
	return time.Duration(c.BattleDurationSeconds) * time.Second
}

// QueueEntryTTL is zero when eviction is disabled.
func (c Config) QueueEntryTTL() time.Duration {
	return time.Duration(c.QueueEntryTTLSeconds) * time.Second
}

func (c Config) QueueEvictInterval() time.Duration {
	return time.Duration(c.QueueEvictIntervalSeconds) * time.Second
}

func (c Config) SubscriptionPoll() time.Duration {
	return time.Duration(c.SubscriptionPollSeconds) * time.Second
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// R2Enabled reports whether submission archiving has credentials.
func (c Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}
