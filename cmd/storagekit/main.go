package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/3leaps/storagekit/internal/cmd"
	"github.com/3leaps/storagekit/internal/observability"
)

// Set by the linker: -X main.version=... -X main.commit=... -X main.buildDate=...
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	observability.InitCLILogger("storagekit", false)
	cmd.SetVersionInfo(version, commit, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()

	_ = observability.CLILogger.Sync()
	os.Exit(code)
}
