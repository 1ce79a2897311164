package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/gitlicense/internal/adapter/driven/github"
	"github.com/ericfisherdev/gitlicense/internal/adapter/driven/metrics"
	httphandler "github.com/ericfisherdev/gitlicense/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/gitlicense/internal/adapter/driving/web"
	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"repo", cfg.GitHubRepo,
		"branch", cfg.GitHubBranch,
		"path", cfg.GitHubPath,
		"max_attempts", cfg.MaxAttempts,
		"remote_timeout", cfg.RemoteTimeout,
		"hash_identifiers", cfg.HashIdentifiers,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Create GitHub contents client (cache, rate limit, PAT auth).
	ghClient, err := githubadapter.NewClient(cfg.GitHubToken, cfg.GitHubRepo, cfg.GitHubBranch)
	if err != nil {
		return err
	}
	slog.Info("github client created", "location", ghClient.Location())

	// 4. Create telemetry.
	recorder := metrics.NewRecorder()

	// 5. Create license store and service.
	store := application.NewLicenseStore(ghClient, application.StoreConfig{
		Location:    cfg.GitHubPath,
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     cfg.RemoteTimeout,
	}, recorder, slog.Default())
	licenseSvc := application.NewLicenseService(store, recorder, cfg.HashIdentifiers, slog.Default())

	// 6. Read the registry once. Failures are logged, not fatal: the document
	// may be created by the first write, and GitHub may recover.
	if reg, err := store.Load(ctx); err != nil {
		slog.Warn("initial registry load failed", "path", cfg.GitHubPath, "error", err)
	} else {
		slog.Info("registry loaded", "path", cfg.GitHubPath, "licenses", reg.Len(), "version", reg.Version)
	}

	// 7. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(licenseSvc, cfg.AdminSecret, recorder.Handler(), slog.Default())
	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	// 8. Create web handler and register dashboard routes.
	location := ghClient.Location() + ":" + cfg.GitHubPath
	webHandler := webhandler.NewHandler(licenseSvc, cfg.AdminSecret, location, slog.Default())
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.Wrap(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 9. Log startup complete.
	slog.Info("gitlicense started", "listen_addr", cfg.ListenAddr, "location", location)

	// 10. Wait for shutdown signal or server failure.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	// 11. Graceful shutdown; in-flight writes finish within the drain window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
