package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bfc-vpn/mfa-core/internal/config"
	"github.com/bfc-vpn/mfa-core/internal/handler"
	infraRedis "github.com/bfc-vpn/mfa-core/internal/infrastructure/redis"
	"github.com/bfc-vpn/mfa-core/internal/pkg/crypto"
	"github.com/bfc-vpn/mfa-core/internal/repository"
	"github.com/bfc-vpn/mfa-core/internal/service/backup"
	"github.com/bfc-vpn/mfa-core/internal/service/events"
	"github.com/bfc-vpn/mfa-core/internal/service/lockout"
	"github.com/bfc-vpn/mfa-core/internal/service/mfa"
	"github.com/bfc-vpn/mfa-core/internal/service/totp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	})))
	slog.Info("Starting BFC-VPN MFA core...")

	ctx := context.Background()

	db, err := repository.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Database connection failed", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := infraRedis.NewClient(infraRedis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		slog.Error("Redis connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Redis connected")

	encryptor, err := crypto.NewAESEncryptorFromBase64(cfg.TOTP.EncryptionKey)
	if err != nil {
		slog.Error("Encryption key invalid", slog.Any("error", err))
		os.Exit(1)
	}

	sink := repository.NewSecurityEventSink(db.Pool)
	recorder := events.NewRecorder(sink, events.Options{
		BufferSize:    cfg.Events.BufferSize,
		FlushInterval: cfg.Events.FlushInterval,
		FlushTimeout:  cfg.Events.FlushTimeout,
		MaxBackoff:    cfg.Events.MaxBackoff,
	})
	slog.Info("Security event recorder started", slog.Int("buffer_size", cfg.Events.BufferSize))

	totpEngine := totp.NewEngine(cfg.TOTP, redisClient, encryptor)
	backupManager := backup.NewManager(cfg.Backup, redisClient)
	lockoutController := lockout.NewController(cfg.Lockout, redisClient)
	mfaService := mfa.NewService(totpEngine, backupManager, lockoutController, recorder)
	slog.Info("MFA service initialized")

	healthHandler := handler.NewHealthHandler(db, redisClient, recorder)
	mfaHandler := handler.NewMFAHandler(mfaService)

	router := handler.NewRouter(cfg, healthHandler, mfaHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("Server starting", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	srv.Shutdown(shutdownCtx)

	// Drain buffered security events before the sink goes away
	if err := recorder.Close(shutdownCtx); err != nil {
		slog.Error("Event recorder shutdown incomplete", slog.Any("error", err))
	}

	redisClient.Close()
	db.Close()
	slog.Info("Server stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
