package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Catalog  CatalogConfig
	Cookie   CookieConfig
	CORS     CORSConfig
	Throttle ThrottleConfig
	Journal  JournalConfig
	DB       DBConfig
	Redis    RedisConfig
	Log      LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// CatalogConfig controls where coupons come from and how claim state is swept.
type CatalogConfig struct {
	File          string        `envconfig:"CATALOG_FILE" default:""` // empty uses the built-in catalog
	SweepInterval time.Duration `envconfig:"LEDGER_SWEEP_INTERVAL" default:"10m"`
}

// CookieConfig holds tracker cookie attributes.
// Cross-site frontends need COOKIE_SAMESITE=None together with COOKIE_SECURE=true.
type CookieConfig struct {
	Secure   bool   `envconfig:"COOKIE_SECURE" default:"false"`
	SameSite string `envconfig:"COOKIE_SAMESITE" default:"Lax"`
}

// CORSConfig holds the cross-origin allow-list.
type CORSConfig struct {
	AllowedOrigins  []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	AllowedSuffixes []string `envconfig:"CORS_ALLOWED_ORIGIN_SUFFIXES" default:".vercel.app"`
}

// ThrottleConfig holds the per-client request throttle settings.
type ThrottleConfig struct {
	Enabled bool    `envconfig:"THROTTLE_ENABLED" default:"true"`
	RPS     float64 `envconfig:"THROTTLE_RPS" default:"5"`
	Burst   int     `envconfig:"THROTTLE_BURST" default:"20"`
}

// Validate rejects settings that would refuse every request.
func (c ThrottleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Burst < 1 {
		return fmt.Errorf("THROTTLE_BURST must be at least 1 when throttling is enabled, got %d", c.Burst)
	}
	if c.RPS <= 0 {
		return fmt.Errorf("THROTTLE_RPS must be positive when throttling is enabled, got %g", c.RPS)
	}
	return nil
}

// JournalConfig toggles the Postgres claim journal.
type JournalConfig struct {
	Enabled bool `envconfig:"JOURNAL_ENABLED" default:"false"`
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"coupon_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"1"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.sslMode())
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	if c.MinConns > 0 {
		dsn += fmt.Sprintf("&pool_min_conns=%d", c.MinConns)
	}
	return dsn
}

func (c DBConfig) sslMode() string {
	if c.SSLMode == "" {
		return "disable"
	}
	return c.SSLMode
}

// RedisConfig holds the optional Redis statistics backend.
// An empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr        string `envconfig:"REDIS_ADDR" default:""`
	Password    string `envconfig:"REDIS_PASSWORD" default:""`
	DB          int    `envconfig:"REDIS_DB" default:"0"`
	StatsPrefix string `envconfig:"STATS_PREFIX" default:"coupon:stats"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads an optional .env file, then parses environment variables into the Config struct.
// Variables already present in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Throttle.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
