// Package lvm wraps the LVM and mount tooling used to prepare volumes for
// a backup run.
package lvm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fgeck/lvrestic/internal/runner"
	"github.com/rs/zerolog"
)

// Volume identifies one logical volume. Raw marks a device holding a whole
// disk image whose first partition is the actual filesystem.
type Volume struct {
	VG      string
	LV      string
	Options []string
	Raw     bool
}

// Device returns the device-mapper path for the volume. Dashes in the LV
// name are doubled, which is how device-mapper escapes them.
func (v Volume) Device() string {
	return fmt.Sprintf("/dev/mapper/%s-%s", v.VG, strings.ReplaceAll(v.LV, "-", "--"))
}

// MountDevice returns the device that actually gets mounted: the first
// partition for raw volumes, the volume itself otherwise.
func (v Volume) MountDevice() string {
	if v.Raw {
		// Raw VM disks are assumed to carry a single partition.
		return v.Device() + "1"
	}
	return v.Device()
}

// MountPath returns the mount point for the volume under the mounts root.
func (v Volume) MountPath(mountsDir string) string {
	return filepath.Join(mountsDir, v.VG, v.LV)
}

// QualifiedName returns the vg/lv form the LVM tools take as an argument.
func (v Volume) QualifiedName() string {
	return v.VG + "/" + v.LV
}

// HasOption reports whether the volume carries the given mount option hint.
func (v Volume) HasOption(name string) bool {
	for _, opt := range v.Options {
		if opt == name {
			return true
		}
	}
	return false
}

// AlreadyMountedError reports a mount request for a volume that is already
// in the mount table.
type AlreadyMountedError struct {
	Volume Volume
}

func (e *AlreadyMountedError) Error() string {
	return fmt.Sprintf("volume %s is already mounted", e.Volume.QualifiedName())
}

// NotFoundError reports a configured volume that LVM does not know about.
type NotFoundError struct {
	Volume Volume
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("volume %s not found", e.Volume.QualifiedName())
}

// VolumeService defines the operations on logical volumes.
type VolumeService interface {
	Exists(ctx context.Context, vol Volume) bool
	IsMounted(ctx context.Context, vol Volume) bool
	Mount(ctx context.Context, vol Volume, readOnly bool) error
	Unmount(ctx context.Context, vol Volume) error
	Remove(ctx context.Context, vol Volume) error
	MountPath(vol Volume) string
}

// VolumeManager implements VolumeService on top of lvs, mount, umount,
// findmnt and kpartx.
type VolumeManager struct {
	executor  runner.Executor
	mountsDir string
	logger    zerolog.Logger
}

// NewVolumeManager creates a volume manager mounting under mountsDir.
func NewVolumeManager(logger zerolog.Logger, executor runner.Executor, mountsDir string) *VolumeManager {
	return &VolumeManager{
		executor:  executor,
		mountsDir: mountsDir,
		logger:    logger,
	}
}

// MountPath returns the mount point the manager uses for the volume.
func (m *VolumeManager) MountPath(vol Volume) string {
	return vol.MountPath(m.mountsDir)
}

// Exists reports whether LVM knows the volume's device.
func (m *VolumeManager) Exists(ctx context.Context, vol Volume) bool {
	return m.executor.Probe(ctx, "lvs", vol.Device()) == 0
}

// IsMounted reports whether the volume's mount device is in the mount table.
func (m *VolumeManager) IsMounted(ctx context.Context, vol Volume) bool {
	return m.executor.Probe(ctx, "findmnt", vol.MountDevice()) == 0
}

// Mount mounts the volume at its mount point, creating the directory if
// needed and mapping partitions first for raw volumes. Mounting an already
// mounted volume is a hard error.
func (m *VolumeManager) Mount(ctx context.Context, vol Volume, readOnly bool) error {
	if m.IsMounted(ctx, vol) {
		return &AlreadyMountedError{Volume: vol}
	}

	dir := m.MountPath(vol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mount dir %s: %w", dir, err)
	}

	if vol.Raw {
		if _, err := m.executor.Run(ctx, "kpartx", "-v", "-a", vol.Device()); err != nil {
			return fmt.Errorf("mapping partitions of %s: %w", vol.Device(), err)
		}
	}

	var args []string
	switch {
	case readOnly:
		args = append(args, "-o", "ro")
	case vol.HasOption("xfs"):
		// An XFS snapshot carries the UUID of its origin.
		args = append(args, "-o", "nouuid")
	}
	args = append(args, vol.MountDevice(), dir)

	if _, err := m.executor.Run(ctx, "mount", args...); err != nil {
		if vol.Raw {
			// Do not leave partition mappings behind for a failed mount.
			if _, unmapErr := m.executor.Run(ctx, "kpartx", "-d", vol.Device()); unmapErr != nil {
				m.logger.Warn().Err(unmapErr).Str("device", vol.Device()).
					Msg("failed to unmap partitions after failed mount")
			}
		}
		return fmt.Errorf("mounting %s at %s: %w", vol.MountDevice(), dir, err)
	}

	m.logger.Info().
		Str("device", vol.MountDevice()).
		Str("mount_point", dir).
		Bool("read_only", readOnly).
		Msg("volume mounted")
	return nil
}

// Unmount unmounts the volume and removes raw partition mappings. A volume
// that is not mounted is a no-op, so teardown paths can call it blindly.
func (m *VolumeManager) Unmount(ctx context.Context, vol Volume) error {
	if !m.IsMounted(ctx, vol) {
		m.logger.Debug().Str("volume", vol.QualifiedName()).Msg("volume not mounted, nothing to unmount")
		return nil
	}

	if _, err := m.executor.Run(ctx, "umount", m.MountPath(vol)); err != nil {
		return fmt.Errorf("unmounting %s: %w", m.MountPath(vol), err)
	}

	if vol.Raw {
		if _, err := m.executor.Run(ctx, "kpartx", "-d", vol.Device()); err != nil {
			return fmt.Errorf("unmapping partitions of %s: %w", vol.Device(), err)
		}
	}

	m.logger.Info().Str("volume", vol.QualifiedName()).Msg("volume unmounted")
	return nil
}

// Remove deletes the logical volume.
func (m *VolumeManager) Remove(ctx context.Context, vol Volume) error {
	if _, err := m.executor.Run(ctx, "lvremove", "-y", vol.QualifiedName()); err != nil {
		return fmt.Errorf("removing volume %s: %w", vol.QualifiedName(), err)
	}

	m.logger.Info().Str("volume", vol.QualifiedName()).Msg("volume removed")
	return nil
}
