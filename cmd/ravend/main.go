package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/raven/internal/backup"
	"github.com/dukerupert/raven/internal/database"
	"github.com/dukerupert/raven/internal/logging"
	"github.com/dukerupert/raven/internal/middleware"
	"github.com/dukerupert/raven/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("RAVEN_LOG_LEVEL"), os.Getenv("RAVEN_LOG_FORMAT"))

	port := os.Getenv("RAVEN_PORT")
	if port == "" {
		port = "25567"
	}

	dbPath := os.Getenv("RAVEN_DB_PATH")
	if dbPath == "" {
		dbPath = "raven.db"
	}

	secret := os.Getenv("RAVEN_API_SECRET")
	if secret == "" {
		slog.Error("RAVEN_API_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, server.Config{APISecret: secret}, logger)

	backupHour, _ := strconv.Atoi(os.Getenv("RAVEN_BACKUP_HOUR"))
	retentionDays, _ := strconv.Atoi(os.Getenv("RAVEN_BACKUP_RETENTION_DAYS"))
	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("RAVEN_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("RAVEN_BACKUP_S3_BUCKET"),
			Region:    os.Getenv("RAVEN_BACKUP_S3_REGION"),
			AccessKey: os.Getenv("RAVEN_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("RAVEN_BACKUP_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("RAVEN_BACKUP_PASSPHRASE"),
		Hour:          backupHour,
		RetentionDays: retentionDays,
	}, db, logger.With("component", "backup"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.SessionRegistry().Start(ctx)
	backupMgr.Start(ctx)

	// Rate-limiter windows expire on their own; this just frees the map.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("raven auth service starting", "addr", ":"+port, "api_key", middleware.DeriveAPIKey(secret))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	srv.SessionRegistry().Stop()
	backupMgr.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
