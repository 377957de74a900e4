// Command cleanweb runs the content filtering API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/cleanweb/internal/app"
	"github.com/raysh454/cleanweb/internal/cli"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cleanweb:", err)
		os.Exit(1)
	}
}

func run() error {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := app.LoadConfig(args.EnvFile)
	if err != nil {
		return err
	}
	cfg.ApplyArgs(args)

	logger := logging.NewLogger("cleanweb", os.Stdout, logging.ParseLevel(cfg.LogLevel))

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		AppConfig:  cfg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	if err := srv.App().Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpServer.Addr})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
	return nil
}
