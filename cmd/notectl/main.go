package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nypoclary/lectura-backend/internal/app"
	"github.com/nypoclary/lectura-backend/internal/config"
	"github.com/nypoclary/lectura-backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "notectl",
	Short:        "Operate the lecture note pipeline from the command line",
	SilenceUsage: true,
	Long: `notectl runs note jobs in the foreground, inspects their status and
processes whole batches listed in an xlsx manifest.

Configuration is read from the environment and an optional .env file, the
same way as the worker service.`,
}

func main() {
	_ = godotenv.Load() // loads .env

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// openApp assembles the pipeline for one command invocation.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger.New())
}
