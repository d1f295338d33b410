package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/temporal-memory-store/internal/cmd/decay"
	"github.com/chirino/temporal-memory-store/internal/cmd/migrate"
	"github.com/chirino/temporal-memory-store/internal/cmd/serve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "temporal-memory-store",
		Usage: "Temporal memory store for AI agents",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			decay.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
