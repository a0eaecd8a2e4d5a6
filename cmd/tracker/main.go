package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/chepyr/tasktracker/internal/activity"
	"github.com/chepyr/tasktracker/internal/auth"
	"github.com/chepyr/tasktracker/internal/config"
	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/handlers"
	"github.com/chepyr/tasktracker/internal/tasks"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := validateEnv()
	logger := initLogger(cfg)
	slog.SetDefault(logger)

	dbConn := initDB(cfg)
	denylist, limiter, closeStores := initStores(cfg, logger)
	handler := initHandlers(cfg, logger, dbConn, denylist, limiter)
	server := initServer(cfg, handler)

	startServer(server, logger, func() error {
		return errors.Join(closeStores(), dbConn.Close())
	})
}

func validateEnv() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func initDB(cfg *config.Config) *sql.DB {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.DBDriver == "sqlite3" {
		// one writer at a time, otherwise sqlite answers SQLITE_BUSY
		dbConn.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, dbConn); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return dbConn
}

// initStores picks Redis-backed token and throttle stores when REDIS_ADDR is
// set, in-process ones otherwise.
func initStores(cfg *config.Config, logger *slog.Logger) (auth.Denylist, auth.Limiter, func() error) {
	if cfg.RedisAddr == "" {
		limiter := auth.NewRateLimiter(cfg.LoginLimit, cfg.LoginWindow, time.Now)
		logger.Warn("REDIS_ADDR not set, revoked tokens and login attempts are kept in memory")
		return auth.NewMemoryDenylist(time.Now), limiter, func() error {
			limiter.Close()
			return nil
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	logger.Info("using redis for sessions and login throttling", "addr", cfg.RedisAddr)
	return auth.NewRedisDenylist(client, "tasktracker:revoked:"),
		auth.NewRedisLimiter(client, "tasktracker:", cfg.LoginLimit, cfg.LoginWindow, time.Now),
		client.Close
}

func initHandlers(cfg *config.Config, logger *slog.Logger, dbConn *sql.DB, denylist auth.Denylist, limiter auth.Limiter) *handlers.Handler {
	var breach auth.BreachChecker = auth.NoBreachCheck{}
	if cfg.BreachCheckEnabled {
		breach = auth.NewPwnedRangeChecker(cfg.BreachCheckURL, cfg.BreachCheckTimeout)
	} else {
		logger.Warn("password breach check disabled")
	}

	credentials := auth.NewCredentialStore(db.NewUserRepository(dbConn), auth.NewPasswordHasher(bcrypt.DefaultCost), breach)
	sessions := auth.NewSessionIssuer(auth.SessionConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	}, denylist, time.Now)
	store := db.NewTaskRepository(dbConn, activity.NewLogger(time.Now))

	return &handlers.Handler{
		Auth:   auth.NewService(credentials, sessions, limiter, logger),
		Tasks:  tasks.NewService(store, time.Now),
		DB:     dbConn,
		Logger: logger,
		Debug:  cfg.Debug,
	}
}

func initServer(cfg *config.Config, handler *handlers.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// startServer serves until SIGINT/SIGTERM, then drains the server before
// releasing the stores.
func startServer(server *http.Server, logger *slog.Logger, release func() error) {
	logger.Info("starting server", "addr", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"tracker": func(ctx context.Context) error {
				logger.Info("shutting down server")
				return errors.Join(server.Shutdown(ctx), release())
			},
		},
	)

	exitCode := <-wait
	logger.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}
