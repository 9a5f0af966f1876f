package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/server"
)

// Exit codes give the service manager something meaningful to act on.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay terminated: %v\n", err)
	}
	os.Exit(code)
}

// run wires configuration, logger, and server together and blocks until a
// fatal listener error or a termination signal. Keeping the logic out of
// main ensures deferred cleanup executes before the process exits.
func run() (int, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := server.NewLogger(cfg.LogLevel, os.Stdout)
	relay := server.NewServer(cfg, logger)
	httpServer := server.CreateServer(cfg.Port, relay.Routes())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatrelay listening", "addr", cfg.Port, "default_room", cfg.DefaultRoom)
		errCh <- server.StartServer(httpServer)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := relay.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error("relay shutdown incomplete", "error", err)
		return exitRuntime, err
	}
	return exitOK, nil
}
