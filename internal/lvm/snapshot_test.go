package lvm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVolumeService is a mock implementation of VolumeService for testing.
type mockVolumeService struct {
	existsFunc    func(ctx context.Context, vol Volume) bool
	isMountedFunc func(ctx context.Context, vol Volume) bool
	mountFunc     func(ctx context.Context, vol Volume, readOnly bool) error
	unmountFunc   func(ctx context.Context, vol Volume) error
	removeFunc    func(ctx context.Context, vol Volume) error
}

func (m *mockVolumeService) Exists(ctx context.Context, vol Volume) bool {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, vol)
	}
	return false
}

func (m *mockVolumeService) IsMounted(ctx context.Context, vol Volume) bool {
	if m.isMountedFunc != nil {
		return m.isMountedFunc(ctx, vol)
	}
	return false
}

func (m *mockVolumeService) Mount(ctx context.Context, vol Volume, readOnly bool) error {
	if m.mountFunc != nil {
		return m.mountFunc(ctx, vol, readOnly)
	}
	return nil
}

func (m *mockVolumeService) Unmount(ctx context.Context, vol Volume) error {
	if m.unmountFunc != nil {
		return m.unmountFunc(ctx, vol)
	}
	return nil
}

func (m *mockVolumeService) Remove(ctx context.Context, vol Volume) error {
	if m.removeFunc != nil {
		return m.removeFunc(ctx, vol)
	}
	return nil
}

func (m *mockVolumeService) MountPath(vol Volume) string {
	return vol.MountPath("/mnt")
}

func TestSnapshotName(t *testing.T) {
	assert.Equal(t, "data_snapshot", SnapshotName("data"))
}

func TestSnapshotVolume_InheritsGroupAndOptions(t *testing.T) {
	source := Volume{VG: "vg0", LV: "data", Options: []string{"xfs"}}

	snap := SnapshotVolume(source)

	assert.Equal(t, "vg0", snap.VG)
	assert.Equal(t, "data_snapshot", snap.LV)
	assert.Equal(t, []string{"xfs"}, snap.Options)
	assert.False(t, snap.Raw)
}

func TestCreate_FreshSnapshot(t *testing.T) {
	var commands []string
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			commands = append(commands, commandLine(name, args...))
			return nil, nil
		},
	}
	volumes := &mockVolumeService{
		existsFunc: func(ctx context.Context, vol Volume) bool { return false },
	}

	mgr := NewSnapshotManager(testLogger(), executor, volumes)
	snap, err := mgr.Create(context.Background(), Volume{VG: "vg0", LV: "data"})

	require.NoError(t, err)
	assert.Equal(t, "data_snapshot", snap.LV)
	assert.Equal(t, []string{"lvcreate -s -n data_snapshot -L 1G vg0/data"}, commands)
}

func TestCreate_RemovesStaleSnapshotFirst(t *testing.T) {
	var removed []string
	executor := &mockExecutor{}
	volumes := &mockVolumeService{
		existsFunc: func(ctx context.Context, vol Volume) bool { return true },
		removeFunc: func(ctx context.Context, vol Volume) error {
			removed = append(removed, vol.QualifiedName())
			return nil
		},
	}

	mgr := NewSnapshotManager(testLogger(), executor, volumes)
	_, err := mgr.Create(context.Background(), Volume{VG: "vg0", LV: "data"})

	require.NoError(t, err)
	// Exactly one snapshot volume per source: the stale one goes first.
	assert.Equal(t, []string{"vg0/data_snapshot"}, removed)
}

func TestCreate_StaleRemovalFailure(t *testing.T) {
	executor := &mockExecutor{}
	volumes := &mockVolumeService{
		existsFunc: func(ctx context.Context, vol Volume) bool { return true },
		removeFunc: func(ctx context.Context, vol Volume) error {
			return errors.New("lvremove failed")
		},
	}

	mgr := NewSnapshotManager(testLogger(), executor, volumes)
	_, err := mgr.Create(context.Background(), Volume{VG: "vg0", LV: "data"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale snapshot")
}

func TestCreate_LvcreateFailure(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("insufficient free space")
		},
	}
	volumes := &mockVolumeService{}

	mgr := NewSnapshotManager(testLogger(), executor, volumes)
	_, err := mgr.Create(context.Background(), Volume{VG: "vg0", LV: "data"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating snapshot")
}

func TestRemove_DelegatesToVolumeService(t *testing.T) {
	var removed []string
	volumes := &mockVolumeService{
		removeFunc: func(ctx context.Context, vol Volume) error {
			removed = append(removed, vol.QualifiedName())
			return nil
		},
	}

	mgr := NewSnapshotManager(testLogger(), &mockExecutor{}, volumes)
	err := mgr.Remove(context.Background(), Volume{VG: "vg0", LV: "data_snapshot"})

	require.NoError(t, err)
	assert.Equal(t, []string{"vg0/data_snapshot"}, removed)
}
