package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kilometers.ai/appdeploy/internal/interfaces/cli"
	"kilometers.ai/appdeploy/internal/interfaces/di"
)

func main() {
	// A signal cancels the running step's command; the pipeline then
	// records it as failed and the run ends normally
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := cli.Execute(ctx, di.Factory(di.Options{}))

	stop()
	os.Exit(code)
}
