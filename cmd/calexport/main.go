package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"calexport/internal/cli"
	appLog "calexport/internal/log"
)

func main() {
	// Root context with cancellation on SIGINT/SIGTERM so a stuck fetch can
	// be interrupted.
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, stopping", "signal", sig.String())
		cancel()
	}()

	code := cli.Execute(ctx)
	cancel()
	os.Exit(code)
}
