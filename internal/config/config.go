package config // package config loads application configuration from environment variables

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Sub-configurations for holds, bookings, events,
// rate limiting and caching are loaded by their own helpers so that each
// concern can be read and tested in isolation.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // zerolog level name
	Storage   string // "sql" or "memory"
	DBDriver  string // "mysql" or "postgres"
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	DBMigrate bool   // create the sales schema at startup
	JWTSecret string // secret used to verify staff and system tokens

	Hold      HoldConfig
	Booking   BookingConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database settings are
// only required when Storage is "sql".
func Load() Config {
	cfg := Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		Storage:   strings.ToLower(envStr("STORAGE", "sql")),
		JWTSecret: must("JWT_SECRET"),
		Hold:      LoadHoldConfig(),
		Booking:   LoadBookingConfig(),
		Events:    LoadEventsConfig(),
		RateLimit: LoadRateLimitConfig(),
		Cache:     LoadCacheConfig(),
	}
	if cfg.Storage == "sql" {
		cfg.DBDriver = strings.ToLower(envStr("DB_DRIVER", "mysql"))
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
		cfg.DBMigrate = envBool("DB_MIGRATE", false)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}
