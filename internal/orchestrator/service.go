// Package orchestrator drives the backup and retention workflows.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/lvrestic/internal/lvm"
	"github.com/fgeck/lvrestic/internal/models"
	"github.com/fgeck/lvrestic/internal/repo"
	"github.com/fgeck/lvrestic/internal/runner"
	"github.com/rs/zerolog"
)

// cleanupTimeout bounds the teardown work that still runs after the run
// context is canceled, e.g. on SIGINT.
const cleanupTimeout = 2 * time.Minute

// Service defines the orchestration entry points.
type Service interface {
	Backup(ctx context.Context) error
	Retention(ctx context.Context) error
}

// Impl implements the orchestrator Service interface.
type Impl struct {
	cfg       models.Config
	volumes   lvm.VolumeService
	snapshots lvm.SnapshotService
	sessions  repo.Opener
	logger    zerolog.Logger
}

// New creates an orchestrator wired to the real LVM and restic tooling.
func New(logger zerolog.Logger, executor runner.Executor, cfg models.Config) *Impl {
	volumes := lvm.NewVolumeManager(logger, executor, cfg.MountsDir)
	snapshots := lvm.NewSnapshotManager(logger, executor, volumes)
	target := lvm.Volume{VG: cfg.TargetVG, LV: cfg.TargetLV}
	sessions := repo.NewManager(logger, executor, volumes, target, cfg.Password)

	return NewWithServices(logger, cfg, volumes, snapshots, sessions)
}

// NewWithServices creates an orchestrator with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.Config,
	volumes lvm.VolumeService,
	snapshots lvm.SnapshotService,
	sessions repo.Opener,
) *Impl {
	return &Impl{
		cfg:       cfg,
		volumes:   volumes,
		snapshots: snapshots,
		sessions:  sessions,
		logger:    logger,
	}
}

// Backup runs the backup workflow for every configured source, in order.
// The first failing source aborts the run; its own teardown has already
// run by the time the error surfaces.
func (s *Impl) Backup(ctx context.Context) error {
	// Every source must exist before the first mutation.
	for _, src := range s.cfg.Sources {
		vol := sourceVolume(src)
		if !s.volumes.Exists(ctx, vol) {
			return &lvm.NotFoundError{Volume: vol}
		}
	}

	for _, src := range s.cfg.Sources {
		if err := s.backupSource(ctx, src); err != nil {
			return fmt.Errorf("backing up %s/%s: %w", src.VG, src.LV, err)
		}
	}

	s.logger.Info().Int("sources", len(s.cfg.Sources)).Msg("backup run completed")
	return nil
}

// backupSource backs up one source: snapshot, session, mount, restic
// backup. Teardown is registered as each resource is acquired and runs in
// reverse order on every exit path.
func (s *Impl) backupSource(ctx context.Context, src models.Source) (err error) {
	source := sourceVolume(src)
	s.logger.Info().Str("source", source.QualifiedName()).Msg("backing up source")

	snapshot, err := s.snapshots.Create(ctx, source)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if rmErr := s.snapshots.Remove(cctx, snapshot); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("snapshot", snapshot.QualifiedName()).
				Msg("failed to remove snapshot")
			if err == nil {
				err = rmErr
			}
		}
	}()

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if closeErr := sess.Close(cctx); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("failed to close repository session")
			if err == nil {
				err = closeErr
			}
		}
	}()

	// A snapshot of a raw VM disk is itself a partitioned raw disk.
	effective := snapshot
	if src.HasOption("raw") {
		effective = lvm.Volume{VG: snapshot.VG, LV: snapshot.LV, Raw: true}
	}

	if err := s.volumes.Mount(ctx, effective, false); err != nil {
		return err
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if umErr := s.volumes.Unmount(cctx, effective); umErr != nil {
			s.logger.Error().Err(umErr).Str("volume", effective.QualifiedName()).
				Msg("failed to unmount backup source")
			if err == nil {
				err = umErr
			}
		}
	}()

	return sess.Backup(ctx, s.volumes.MountPath(effective))
}

// Retention opens one session and applies the retention policy to the
// repository as a whole.
func (s *Impl) Retention(ctx context.Context) (err error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if closeErr := sess.Close(cctx); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("failed to close repository session")
			if err == nil {
				err = closeErr
			}
		}
	}()

	return sess.Forget(ctx, s.cfg.Retention, s.cfg.Prune)
}

func sourceVolume(src models.Source) lvm.Volume {
	return lvm.Volume{VG: src.VG, LV: src.LV, Options: src.Options}
}

// cleanupContext detaches teardown from the run context so cleanup still
// happens after a cancellation, bounded by cleanupTimeout.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
