package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropDatabas3/epicauth/internal/config"
	"github.com/dropDatabas3/epicauth/internal/http/server"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml (optional)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cannot load %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "epicauth",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg, server.Options{Version: version})
	if err != nil {
		lg.Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			lg.Warn("cleanup error", logger.Err(err))
		}
	}()

	go app.Warm(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", logger.String("addr", cfg.Server.Addr), logger.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			lg.Error("server failed", logger.Err(err))
		}
	case <-ctx.Done():
		lg.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			lg.Warn("graceful shutdown failed", logger.Err(err))
		}
	}
}
