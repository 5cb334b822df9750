package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"nostatus/internal/cli"
	"nostatus/internal/config"
	"nostatus/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	// Diagnostics go to stderr so the REPL on stdout stays readable.
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
