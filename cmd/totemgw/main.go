package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"totemgw/internal/app"
	"totemgw/internal/billing"
	"totemgw/internal/handlers"
	"totemgw/internal/mailer"
	"totemgw/internal/printer"
	u "totemgw/internal/utils"
)

func main() {
	cfg := u.LoadConfig()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	// Without OAuth credentials every upstream call fails; refuse to start
	// unless the mock fallback is on.
	if (cfg.Billing.ClientID == "" || cfg.Billing.ClientSecret == "") && !cfg.Billing.MockPessoas {
		u.Error("CLIENT_ID e CLIENT_SECRET são obrigatórios")
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.BoletoCacheDB,
		})
	}

	idleConnsClosed := make(chan struct{})
	if cfg.Auth.Postgres.Host != "" {
		if err := u.LoadKioskKeysFromPostgres(cfg.Auth.Postgres); err != nil {
			u.Error("Failed to load kiosk keys", "error", err)
		}
		go u.RefreshKioskKeysPeriodically(cfg.Auth.Postgres, time.Minute, idleConnsClosed)
	}

	mail, err := mailer.New(cfg)
	if err != nil {
		u.Error("Mailer init failed", "error", err)
		os.Exit(1)
	}

	svc := handlers.NewService(cfg, billing.NewClient(cfg), rdb, printer.New(cfg), mail)
	a := app.SetupApp(cfg, svc)

	startServer(a, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		u.Info("Gateway listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
