package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/bulk"
	"github.com/gdg-garage/event-checkin/internal/checkin"
	"github.com/gdg-garage/event-checkin/internal/config"
	"github.com/gdg-garage/event-checkin/internal/database"
	"github.com/gdg-garage/event-checkin/internal/handlers"
	"github.com/gdg-garage/event-checkin/internal/i18n"
	"github.com/gdg-garage/event-checkin/internal/mailer"
	"github.com/gdg-garage/event-checkin/internal/notifier"
	"github.com/gdg-garage/event-checkin/internal/registry"
	"github.com/gdg-garage/event-checkin/internal/storage"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("port", cfg.Port),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("walk_in_policy", cfg.WalkInPolicy),
		slog.Bool("auth_disabled", cfg.AuthDisabled))

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	images, err := newImageStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize image storage", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		n       notifier.Notifier
		members auth.MemberFetcher
	)
	if cfg.DiscordBotToken != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
		if err != nil {
			logger.Warn("discord session not initialized", slog.Any("error", err))
		} else {
			members = session
			if cfg.DiscordNotificationsChannelID != "" {
				n = notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID)
			}
		}
	}

	var sender mailer.Sender
	if cfg.MailEnabled() {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("SMTP not configured, email delivery disabled")
	}

	reg := registry.New(db, images, logger)
	svc := checkin.NewService(db, reg, n, logger, checkin.Options{WalkInPolicy: cfg.WalkInPolicy})
	importer := bulk.NewImporter(reg, svc, logger)
	exporter := bulk.NewExporter(svc, cfg.Location())
	translator := i18n.NewTranslator(cfg.DefaultLocale, logger)
	dispatcher := mailer.NewDispatcher(sender, reg, logger)

	r := chi.NewRouter()
	handlers.RegisterRoutes(r, handlers.Handlers{
		Auth:         auth.NewAuthHandler(cfg, db, members, logger),
		ScannerKeys:  handlers.NewScannerKeyHandler(db, logger),
		Events:       handlers.NewEventHandler(svc, importer, logger),
		Checkins:     handlers.NewCheckinHandler(svc, translator, logger),
		Participants: handlers.NewParticipantHandler(reg, importer, dispatcher, logger),
		Exports:      handlers.NewExportHandler(exporter, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}

func newImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.StorageDriver == "r2" {
		return storage.NewR2Store(ctx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		})
	}
	return storage.NewLocalStore(cfg.StorageDir)
}
