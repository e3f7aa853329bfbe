// config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	RoleAll        = "all"
	RoleMatchmaker = "matchmaker"
	RoleGame       = "game"
)

// Config holds every setting read from the environment.
type Config struct {
	Role       string `env:"APP_ROLE" envDefault:"all"`
	Port       string `env:"PORT" envDefault:"5200"`
	InstanceID string `env:"INSTANCE_ID"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty  bool   `env:"LOG_PRETTY" envDefault:"false"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Shared secret the match server presents when submitting results.
	APIKey string `env:"MATCHMAKER_API_KEY"`

	MatchmakerURL string        `env:"MATCHMAKER_URL" envDefault:"http://localhost:5200"`
	GameServerURL string        `env:"GAME_SERVER_URL" envDefault:"http://localhost:5200"`
	PeerTimeout   time.Duration `env:"PEER_TIMEOUT" envDefault:"10s"`

	LockLease         time.Duration `env:"LOCK_LEASE" envDefault:"5s"`
	LockRetryDelay    time.Duration `env:"LOCK_RETRY_DELAY" envDefault:"100ms"`
	LockMaxRetryDelay time.Duration `env:"LOCK_MAX_RETRY_DELAY" envDefault:"100ms"`
	LockMaxAttempts   int           `env:"LOCK_MAX_ATTEMPTS" envDefault:"0"`
	LockReapInterval  time.Duration `env:"LOCK_REAP_INTERVAL" envDefault:"1m"`

	ForfeitTimeout     time.Duration `env:"GAME_CONNECTION_TIMEOUT" envDefault:"60s"`
	TickInterval       time.Duration `env:"GAME_TICK_INTERVAL" envDefault:"30ms"`
	MaxPoints          int           `env:"GAME_MAX_POINTS" envDefault:"3"`
	SnapshotTTL        time.Duration `env:"MATCH_SNAPSHOT_TTL" envDefault:"10m"`
	RegistryGCInterval time.Duration `env:"REGISTRY_GC_INTERVAL" envDefault:"1s"`
	SocketWriteTimeout time.Duration `env:"SOCKET_WRITE_TIMEOUT" envDefault:"5s"`

	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileStaleAfter time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"2m"`

	R2AccountID    string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKey    string `env:"R2_ACCESS_KEY_ID"`
	R2AccessSecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket       string `env:"R2_BUCKET_NAME"`
	CDNBaseURL     string `env:"CDN_BASE_URL"`
}

// Load reads .env (if present) and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("[CONFIG] no .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse parses the process environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Role {
	case RoleAll, RoleMatchmaker, RoleGame:
	default:
		return fmt.Errorf("APP_ROLE must be one of all, matchmaker, game (got %q)", c.Role)
	}
	if c.RunsMatchmaker() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.APIKey == "" {
		return fmt.Errorf("MATCHMAKER_API_KEY environment variable not set")
	}
	if c.MaxPoints < 1 {
		return fmt.Errorf("GAME_MAX_POINTS must be at least 1")
	}
	if c.LockMaxAttempts < 0 {
		return fmt.Errorf("LOCK_MAX_ATTEMPTS must not be negative")
	}
	return nil
}

func (c Config) RunsMatchmaker() bool { return c.Role == RoleAll || c.Role == RoleMatchmaker }

func (c Config) RunsGameServer() bool { return c.Role == RoleAll || c.Role == RoleGame }

// ArchiveEnabled reports whether tournament standings should be uploaded to R2.
func (c Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2Bucket != ""
}
