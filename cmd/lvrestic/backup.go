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

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up all configured logical volumes",
	Long: `Back up every configured logical volume, in configuration order:
1. Create a copy-on-write snapshot of the source volume
2. Mount the repository volume read-write and verify the repository
3. Mount the snapshot (mapping partitions for raw VM disks)
4. Run restic backup against the snapshot mount
5. Unmount, remount the repository read-only, remove the snapshot

Teardown runs on every exit path; a failing source aborts the run.`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("target", cfg.TargetVG+"/"+cfg.TargetLV).
		Int("sources", len(cfg.Sources)).
		Msg("configuration loaded")

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
	if err := svc.Backup(ctx); err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
