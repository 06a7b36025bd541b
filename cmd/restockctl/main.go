package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/restock/internal/app"
	"github.com/mamadbah2/restock/internal/config"
	"github.com/mamadbah2/restock/pkg/logger"
)

var Version = "dev"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "restockctl",
		Short:         "Operator tool for purchase order deliveries",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to an env file")

	rootCmd.AddCommand(resolveUnitCmd(&envFile))
	rootCmd.AddCommand(addItemCmd(&envFile))
	rootCmd.AddCommand(drainCmd(&envFile))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// withApp loads configuration, runs fn against a connected App and tears it down.
func withApp(ctx context.Context, envFile string, fn func(*app.App) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, cfg, log.Named("restockctl"))
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(a)
}
