package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/lvrestic/internal/deps"
	"github.com/fgeck/lvrestic/internal/orchestrator"
	"github.com/fgeck/lvrestic/internal/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var prune bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy to the repository",
	Long: `Mount the repository volume and run restic forget with the keep
counts from the configuration. With --prune, unreferenced data is removed
from the repository as well; that part is irreversible.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&prune, "prune", "p", false, "also prune unreferenced data (irreversible)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Prune = prune

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, cleaning up")
		cancel()
	}()

	executor := runner.NewExecutor(log.Logger, cfg.CommandTimeout)

	if err := deps.Check(ctx, executor); err != nil {
		log.Error().Err(err).Msg("dependencies are missing")
		return err
	}

	svc := orchestrator.New(log.Logger, executor, *cfg)
	if err := svc.Retention(ctx); err != nil {
		log.Error().Err(err).Msg("cleanup failed")
		return err
	}

	log.Info().Msg("cleanup completed successfully")
	return nil
}
