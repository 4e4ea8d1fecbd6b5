// Command rcsd runs the Restore Control Service in one of four modes:
// api (HTTP server), worker (background maintenance), seed-demo (provisions
// demo data), or migrate (applies schema migrations and exits).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/restorecp/rcs/internal/app"
	"github.com/restorecp/rcs/internal/config"
)

func main() {
	mode := flag.String("mode", "", "run mode: api, worker, seed-demo, or migrate (overrides RCS_MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flag overrides env var.
	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
