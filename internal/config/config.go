// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	Env   string
	Debug bool
	Port  string

	DBDriver string
	DSN      string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	LoginLimit  int
	LoginWindow time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BreachCheckEnabled bool
	BreachCheckURL     string
	BreachCheckTimeout time.Duration

	LogLevel slog.Level
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// Load reads .env (when present) and then the environment. Variables already
// set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Env:      r.str("APP_ENV", "development"),
		Debug:    r.boolean("APP_DEBUG", false),
		Port:     r.str("SERVER_PORT", "8080"),
		DBDriver: r.str("DB_DRIVER", "postgres"),

		JWTSecret: getenv("JWT_SECRET"),
		JWTIssuer: r.str("JWT_ISSUER", "tasktracker"),
		JWTTTL:    r.duration("JWT_TTL", 60*time.Minute),

		LoginLimit:  r.integer("LOGIN_RATE_LIMIT", 5),
		LoginWindow: r.duration("LOGIN_RATE_WINDOW", time.Minute),

		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       r.integer("REDIS_DB", 0),

		BreachCheckEnabled: r.boolean("BREACH_CHECK_ENABLED", true),
		BreachCheckURL:     r.str("BREACH_CHECK_URL", ""),
		BreachCheckTimeout: r.duration("BREACH_CHECK_TIMEOUT", 3*time.Second),

		LogLevel: r.level("LOG_LEVEL", slog.LevelInfo),
	}
	cfg.DSN = r.dsn(cfg.DBDriver)

	switch {
	case cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3":
		r.fail("DB_DRIVER", "must be postgres or sqlite3")
	case cfg.DSN == "":
		r.fail("DATABASE_URL", "must be set, or POSTGRES_HOST, POSTGRES_USER and POSTGRES_DB")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		r.fail("JWT_SECRET", fmt.Sprintf("must be at least %d characters", minSecretLength))
	}
	if cfg.LoginLimit < 1 {
		r.fail("LOGIN_RATE_LIMIT", "must be positive")
	}
	if cfg.JWTTTL <= 0 {
		r.fail("JWT_TTL", "must be positive")
	}
	if cfg.BreachCheckEnabled && cfg.BreachCheckURL != "" {
		if _, err := url.ParseRequestURI(cfg.BreachCheckURL); err != nil {
			r.fail("BREACH_CHECK_URL", "must be a URL")
		}
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) fail(key, msg string) {
	r.errs = append(r.errs, fmt.Errorf("%s %s", key, msg))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, "must be an integer")
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, "must be true or false")
		return def
	}
	return b
}

// duration accepts Go durations ("90s") or a bare number of minutes.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Minute
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, "must be a duration")
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.fail(key, "must be debug, info, warn or error")
		return def
	}
	return lvl
}

func (r *reader) dsn(driver string) string {
	if v := strings.TrimSpace(r.getenv("DATABASE_URL")); v != "" {
		return v
	}
	if driver != "postgres" {
		return ""
	}
	host, user, name := r.getenv("POSTGRES_HOST"), r.getenv("POSTGRES_USER"), r.getenv("POSTGRES_DB")
	if host == "" || user == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, r.getenv("POSTGRES_PASSWORD"), name, r.str("POSTGRES_PORT", "5432"))
}
