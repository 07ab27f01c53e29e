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

	"golang.org/x/sync/errgroup"

	"github.com/luqta/shopbot/internal/assistant"
	"github.com/luqta/shopbot/internal/auth"
	"github.com/luqta/shopbot/internal/backend"
	"github.com/luqta/shopbot/internal/bot"
	"github.com/luqta/shopbot/internal/config"
	"github.com/luqta/shopbot/internal/logging"
	"github.com/luqta/shopbot/internal/session"
	"github.com/luqta/shopbot/internal/signing"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("shopbot starting",
		slog.String("version", Version),
		slog.String("backend", cfg.BaseURL()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer store.Close()

	signer, err := signing.New(signing.Config{
		Secret:         cfg.SignatureSecretKey,
		TrustedURLs:    cfg.TrustedURLs(),
		ValidityWindow: cfg.SignatureValidityWindow,
	})
	if err != nil {
		return fmt.Errorf("configuring request signer: %w", err)
	}

	// Every backend client shares this http.Client, so every backend call
	// is signed and carries the same timeout.
	backendHTTP := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: signing.NewTransport(signer, nil, logger),
	}

	authClient := backend.NewAuthClient(backendHTTP, cfg.AuthAPIURL(), logger)
	userClient := backend.NewUserClient(backendHTTP, cfg.UsersAPIURL(), logger)
	productClient := backend.NewProductClient(backendHTTP, cfg.ProductsAPIURL(), logger)

	authSvc := auth.NewService(store, authClient, auth.Config{
		AccessTokenTTL:  cfg.AccessTokenLifetime,
		RefreshTokenTTL: cfg.RefreshTokenLifetime,
		StaffFlagTTL:    cfg.StaffFlagLifetime,
	}, logger)

	ai := assistant.NewClient(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.OpenRouterAPIKey,
		logger,
		assistant.WithAttribution("https://luqta.ps", "Luqta eShop"),
	)
	history := assistant.NewHistory(store.Client(), 0)

	// Telegram traffic uses its own client: no signing transport, and a
	// timeout generous enough for the long poll.
	telegramHTTP := &http.Client{Timeout: cfg.PollTimeout + 10*time.Second}

	b := bot.New(
		bot.NewClient(telegramHTTP, "", cfg.BotToken),
		authSvc,
		productClient,
		userClient,
		ai,
		history,
		bot.Config{PollTimeout: cfg.PollTimeout, HandlerTimeout: cfg.RequestTimeout},
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shopbot stopped")

	return nil
}
