package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/bot"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/config"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/imagestore"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/reminder"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/sheets"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/state"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/tunnel"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting CP practice bot")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the shared spreadsheet
	sheetStore, err := sheets.New(ctx, cfg.SpreadsheetID, cfg.GoogleCredsJSON, cfg.GoogleCredsFile)
	if err != nil {
		slog.Error("Failed to create sheets store", "error", err)
		os.Exit(1)
	}

	// Warm-start registered users from the sheet
	appState := state.New()
	users, err := sheetStore.LoadRegisteredUsers(ctx)
	if err != nil {
		slog.Error("Failed to load registered users", "error", err)
		os.Exit(1)
	}
	appState.Rehydrate(users)
	slog.Info("Loaded registered users", "count", len(users))

	// Local image store
	images, err := imagestore.New(cfg.ImagesDir)
	if err != nil {
		slog.Error("Failed to create image store", "error", err)
		os.Exit(1)
	}

	// Public tunnel for the image server; degrades to localhost on failure
	tun := tunnel.New(cfg.NgrokControlURL)
	publicBase := tun.Start(ctx, cfg.HTTPPort)
	images.SetBaseURL(publicBase)
	slog.Info("Image server public base", "url", publicBase)

	// Image file server on its own goroutine
	mux := http.NewServeMux()
	mux.Handle("/image/", images.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Image server failed", "error", err)
		}
	}()

	// Create and start the bot
	b, err := bot.New(cfg, appState, sheetStore, images)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}
	if err := b.Start(); err != nil {
		slog.Error("Failed to start bot", "error", err)
		os.Exit(1)
	}

	// Start the daily reminder
	rem := reminder.New(appState, b, cfg.ReminderHour, cfg.ReminderMinute)
	go rem.Start(ctx)

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()

	rem.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down image server", "error", err)
	}

	tun.Stop()

	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	slog.Info("Bot stopped")
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
