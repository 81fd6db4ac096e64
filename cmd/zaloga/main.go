package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zaloga/internal/api"
	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/config"
	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
	"github.com/erazemk/zaloga/internal/telemetry"
)

var version = "dev"

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also written to that file. The returned cleanup closes it.
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("zaloga", flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")
	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: zaloga [flags]

Flags:
  -d, -db <path>          SQLite database path (default: zaloga.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        superadmin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Every other setting is read from ZALOGA_* environment variables or .env.
`)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	dsn := cfg.DBDSN
	if cfg.DBDriver == db.DriverSQLite {
		dsn = db.SQLiteDSN(cfg.DBPath)
	}
	database, err := db.Open(cfg.DBDriver, dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "driver", cfg.DBDriver)

	if err := ensureSuperadmin(ctx, database, cfg.AdminUser); err != nil {
		return err
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	slog.Info("blob store ready", "driver", blobs.Driver())

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		if jwtSecret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}
	}

	opts := api.Options{
		JWTSecret:      jwtSecret,
		BorrowPeriod:   cfg.BorrowPeriod,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = metrics.New()
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, blobs, opts)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go purgeTokens(janitorCtx, database, time.Hour)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "version", version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// ensureSuperadmin creates the first account on an empty database and
// prints its generated password once.
func ensureSuperadmin(ctx context.Context, database *sqlx.DB, username string) error {
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return fmt.Errorf("checking users: %w", err)
	}
	if len(users) > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleSuperadmin, ""); err != nil {
		return fmt.Errorf("creating superadmin: %w", err)
	}

	printInitResult(username, password)
	return nil
}

// printInitResult prints the first-run account to stdout.
func printInitResult(username, password string) {
	fmt.Println("Superadmin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("It can be changed after logging in.")
	fmt.Println()
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// purgeTokens drops expired logout revocations every interval until ctx ends.
func purgeTokens(ctx context.Context, database *sqlx.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeRevokedTokens(ctx, database)
			if err != nil {
				slog.Warn("failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged revoked tokens", "count", n)
			}
		}
	}
}
