/**
 * @description
 * confito-admin is the operator CLI for the credits service: it prints the package
 * catalog, inspects a user's ledger and runs ledger reconciliation against the
 * configured store.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/app"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/catalog"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/config"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/store"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "confito-admin",
		Short:         "Operator tooling for the Confito credits service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-dir", ".", "Directory holding an optional .env file")

	rootCmd.AddCommand(packagesCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(profileCmd())

	return rootCmd
}

// adminEnv is the store and read-only service an admin command works against.
type adminEnv struct {
	repo    store.Repository
	service app.Service
}

func (e *adminEnv) Close() error {
	return e.repo.Close()
}

func openEnv(cmd *cobra.Command) (*adminEnv, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	envDir, _ := cmd.Flags().GetString("env-dir")
	cfg, err := config.LoadStoreConfig(envDir)
	if err != nil {
		return nil, err
	}

	repo, err := store.Open(cmd.Context(), store.Options{
		Driver:          cfg.StoreDriver,
		DatabaseURL:     cfg.DatabaseURL,
		BoltPath:        cfg.BoltPath,
		AutoMigrate:     cfg.AutoMigrate,
		ConnectAttempts: 1,
	}, logger)
	if err != nil {
		return nil, err
	}

	packages, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		repo.Close()
		return nil, err
	}

	// No payment provider or event publisher: admin commands never open checkouts.
	service := app.NewService(repo, nil, packages, nil, logger, app.Options{AppBaseURL: cfg.AppBaseURL})
	return &adminEnv{repo: repo, service: service}, nil
}
