// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/accountconfig"
	"github.com/meta-1/wiki/internal/config"
	"github.com/meta-1/wiki/internal/database"
	"github.com/meta-1/wiki/internal/handlers"
	"github.com/meta-1/wiki/internal/i18n"
	"github.com/meta-1/wiki/internal/repository"
	"github.com/meta-1/wiki/internal/services/account"
	"github.com/meta-1/wiki/internal/services/assets"
	"github.com/meta-1/wiki/internal/services/email"
	"github.com/meta-1/wiki/internal/services/mailcode"
	"github.com/meta-1/wiki/internal/services/otp"
	"github.com/meta-1/wiki/internal/services/session"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// Redis
	rdb, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			slog.Error("failed to close redis", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Account config, reloaded on SIGHUP
	store := accountconfig.NewStore()
	if loadErr := store.LoadFile(cfg.Account.ConfigFile); loadErr != nil {
		slog.Warn("account config not loaded; account endpoints are unavailable until reload",
			"path", cfg.Account.ConfigFile, "error", loadErr)
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchAccountConfig(ctx, store, cfg.Account.ConfigFile, hup)

	e, err := newEcho(cfg, repository.New(db), rdb, store)
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(e, cfg)
}

// newEcho wires services and handlers into a ready Echo instance.
func newEcho(cfg *config.Config, repo *repository.Repository, rdb redis.UniversalClient, store *accountconfig.Store) (*echo.Echo, error) {
	sender, err := newMailSender(&cfg.SMTP)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(rdb, &cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	mailCodes := mailcode.NewService(rdb, sender, cfg.MailCode.TTL, cfg.MailCode.MaxAttempts)
	accounts := account.NewService(account.Deps{
		Repo:       repo,
		Redis:      rdb,
		MailCodes:  mailCodes,
		OTP:        otp.NewManager(rdb, cfg.OTP.Issuer, cfg.OTP.SecretTTL),
		Sessions:   sessions,
		Config:     store,
		ProfileTTL: cfg.Cache.ProfileTTL,
	})

	var uploads *assets.Service
	if cfg.S3.Enabled() {
		uploads = assets.NewService(&cfg.S3)
	}

	h := handlers.New(handlers.Deps{
		Accounts:  accounts,
		OTP:       account.NewOTPService(accounts),
		MailCodes: mailCodes,
		Config:    store,
		Assets:    uploads,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	h.Mount(e, sessions)

	return e, nil
}

// newMailSender delivers over SMTP when a host is configured and logs codes
// otherwise.
func newMailSender(cfg *config.SMTPConfig) (mailcode.Sender, error) {
	if cfg.Host == "" {
		slog.Warn("SMTP not configured, verification codes are written to the log")
		return email.LogSender{}, nil
	}
	svc, err := email.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return svc, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// watchAccountConfig reloads the account config file on every signal.
// A failed reload keeps the previous snapshot.
func watchAccountConfig(ctx context.Context, store *accountconfig.Store, path string, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			if err := store.LoadFile(path); err != nil {
				slog.Error("account config reload failed", "path", path, "error", err)
				continue
			}
			slog.Info("account config reloaded", "path", path)
		}
	}
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	setup, err := setupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	serve := func(run func() error) {
		if serveErr := run(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("Server running", "url", cfg.Server.BaseURL)

	// ACME answers HTTP-01 challenges and redirects to HTTPS on :80.
	var challengeServer *http.Server
	switch setup.mode {
	case tlsOff:
		go serve(func() error { return e.Start(addr) })
	case tlsACME:
		go serve(func() error { return startTLSServer(e, ":443", setup.config) })
		challengeServer = &http.Server{
			Addr:              ":80",
			Handler:           setup.challenge,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go serve(challengeServer.ListenAndServe)
	default:
		go serve(func() error { return startTLSServer(e, addr, setup.config) })
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if challengeServer != nil {
		if err := challengeServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown ACME challenge server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
