package lvm

import (
	"context"
	"fmt"

	"github.com/fgeck/lvrestic/internal/runner"
	"github.com/rs/zerolog"
)

// snapshotSuffix is appended to the source LV name to form the snapshot
// volume name.
const snapshotSuffix = "_snapshot"

// snapshotExtentSize is the copy-on-write extent size passed to lvcreate.
const snapshotExtentSize = "1G"

// SnapshotName returns the snapshot volume name derived from a source LV.
func SnapshotName(lv string) string {
	return lv + snapshotSuffix
}

// SnapshotVolume returns the snapshot volume derived from a source volume.
// The snapshot lives in the source's volume group and inherits its options.
func SnapshotVolume(source Volume) Volume {
	return Volume{
		VG:      source.VG,
		LV:      SnapshotName(source.LV),
		Options: source.Options,
	}
}

// SnapshotService creates and destroys copy-on-write snapshot volumes.
type SnapshotService interface {
	Create(ctx context.Context, source Volume) (Volume, error)
	Remove(ctx context.Context, snapshot Volume) error
}

// SnapshotManager implements SnapshotService on top of lvcreate/lvremove.
type SnapshotManager struct {
	executor runner.Executor
	volumes  VolumeService
	logger   zerolog.Logger
}

// NewSnapshotManager creates a snapshot manager.
func NewSnapshotManager(logger zerolog.Logger, executor runner.Executor, volumes VolumeService) *SnapshotManager {
	return &SnapshotManager{
		executor: executor,
		volumes:  volumes,
		logger:   logger,
	}
}

// Create takes a snapshot of the source volume. A stale snapshot with the
// same name is removed first, so at most one snapshot per source exists.
func (m *SnapshotManager) Create(ctx context.Context, source Volume) (Volume, error) {
	snapshot := SnapshotVolume(source)

	if m.volumes.Exists(ctx, snapshot) {
		m.logger.Warn().
			Str("snapshot", snapshot.QualifiedName()).
			Msg("snapshot already exists, removing it first")
		if err := m.volumes.Remove(ctx, snapshot); err != nil {
			return Volume{}, fmt.Errorf("removing stale snapshot: %w", err)
		}
	}

	_, err := m.executor.Run(ctx, "lvcreate", "-s",
		"-n", snapshot.LV,
		"-L", snapshotExtentSize,
		source.QualifiedName())
	if err != nil {
		return Volume{}, fmt.Errorf("creating snapshot of %s: %w", source.QualifiedName(), err)
	}

	m.logger.Info().
		Str("source", source.QualifiedName()).
		Str("snapshot", snapshot.QualifiedName()).
		Msg("snapshot created")
	return snapshot, nil
}

// Remove deletes the snapshot volume.
func (m *SnapshotManager) Remove(ctx context.Context, snapshot Volume) error {
	return m.volumes.Remove(ctx, snapshot)
}
