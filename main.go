package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"veritas-client/ui"
)

var (
	version = "0.1.0"
)

func main() {
	// SIGTERM cancels whatever is in flight; SIGINT is left to the chat
	// session, where it stops the reply being streamed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	app := ui.NewApp(version)
	err := app.Run(ctx, os.Args[1:])
	app.Cleanup()
	if err != nil {
		os.Exit(1)
	}
}
