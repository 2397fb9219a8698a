// Package repo manages sessions against the restic repository hosted on
// the target logical volume.
package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fgeck/lvrestic/internal/lvm"
	"github.com/fgeck/lvrestic/internal/models"
	"github.com/fgeck/lvrestic/internal/runner"
	"github.com/rs/zerolog"
)

// NotInitializedError reports a repository that failed the liveness check
// on session open.
type NotInitializedError struct {
	Path string
	Err  error
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("restic repository at %s is not initialized: %v", e.Path, e.Err)
}

func (e *NotInitializedError) Unwrap() error {
	return e.Err
}

// Session is an open repository: the target volume is mounted read-write
// and the repository answered the liveness check. Close always leaves the
// target volume mounted read-only.
type Session interface {
	Backup(ctx context.Context, sourcePath string) error
	Forget(ctx context.Context, policy models.RetentionPolicy, prune bool) error
	Close(ctx context.Context) error
	Path() string
}

// Opener opens repository sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Manager implements Opener for one target volume.
type Manager struct {
	executor runner.Executor
	volumes  lvm.VolumeService
	target   lvm.Volume
	password string
	logger   zerolog.Logger
}

// NewManager creates a session manager for the target volume.
func NewManager(logger zerolog.Logger, executor runner.Executor, volumes lvm.VolumeService, target lvm.Volume, password string) *Manager {
	return &Manager{
		executor: executor,
		volumes:  volumes,
		target:   target,
		password: password,
		logger:   logger,
	}
}

// Open mounts the target volume read-write and verifies the repository is
// reachable. A stale mount is torn down first. On a failed liveness check
// the volume is remounted read-only before the error is returned.
func (m *Manager) Open(ctx context.Context) (Session, error) {
	if m.volumes.IsMounted(ctx, m.target) {
		m.logger.Warn().Str("volume", m.target.QualifiedName()).
			Msg("target volume already mounted, unmounting stale mount")
		if err := m.volumes.Unmount(ctx, m.target); err != nil {
			return nil, fmt.Errorf("unmounting stale target mount: %w", err)
		}
	}

	if err := m.volumes.Mount(ctx, m.target, false); err != nil {
		return nil, fmt.Errorf("mounting target volume: %w", err)
	}

	s := &session{
		executor: m.executor,
		volumes:  m.volumes,
		target:   m.target,
		password: m.password,
		logger:   m.logger,
	}

	if _, err := m.executor.RunWithEnv(ctx, s.env(), "restic", "-r", s.Path(), "snapshots"); err != nil {
		if closeErr := s.Close(ctx); closeErr != nil {
			m.logger.Warn().Err(closeErr).Msg("failed to close session after liveness check failure")
		}
		return nil, &NotInitializedError{Path: s.Path(), Err: err}
	}

	m.logger.Debug().Str("repository", s.Path()).Msg("repository session opened")
	return s, nil
}

type session struct {
	executor runner.Executor
	volumes  lvm.VolumeService
	target   lvm.Volume
	password string
	logger   zerolog.Logger
}

// env carries the repository password to restic. The password never appears
// on a command line.
func (s *session) env() []string {
	return []string{"RESTIC_PASSWORD=" + s.password}
}

// Path returns the mounted repository path.
func (s *session) Path() string {
	return s.volumes.MountPath(s.target)
}

// Backup runs restic backup for the given source path.
func (s *session) Backup(ctx context.Context, sourcePath string) error {
	s.logger.Info().Str("source", sourcePath).Str("repository", s.Path()).Msg("backup started")

	output, err := s.executor.RunWithEnv(ctx, s.env(), "restic", "-r", s.Path(), "backup", sourcePath)
	if err != nil {
		return fmt.Errorf("backing up %s: %w", sourcePath, err)
	}

	s.logger.Info().Str("output", strings.TrimSpace(string(output))).Msg("backup completed")
	return nil
}

// Forget applies the retention policy to the repository.
func (s *session) Forget(ctx context.Context, policy models.RetentionPolicy, prune bool) error {
	args := append([]string{"-r", s.Path(), "forget"}, retentionFlags(policy, prune)...)

	s.logger.Info().Strs("args", args).Msg("applying retention policy")

	output, err := s.executor.RunWithEnv(ctx, s.env(), "restic", args...)
	if err != nil {
		return fmt.Errorf("applying retention policy: %w", err)
	}

	s.logger.Info().Str("output", strings.TrimSpace(string(output))).Msg("retention policy applied")
	return nil
}

// Close unmounts the repository volume and remounts it read-only. It must
// run on every exit path of a session.
func (s *session) Close(ctx context.Context) error {
	if err := s.volumes.Unmount(ctx, s.target); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	if err := s.volumes.Mount(ctx, s.target, true); err != nil {
		return fmt.Errorf("remounting target read-only: %w", err)
	}

	s.logger.Debug().Str("volume", s.target.QualifiedName()).Msg("repository session closed")
	return nil
}

// retentionFlags builds the restic forget flags. A keep count is emitted
// only when it is configured and positive.
func retentionFlags(policy models.RetentionPolicy, prune bool) []string {
	var flags []string

	keep := []struct {
		flag  string
		count *int
	}{
		{"--keep-hourly", policy.KeepHourly},
		{"--keep-daily", policy.KeepDaily},
		{"--keep-weekly", policy.KeepWeekly},
		{"--keep-monthly", policy.KeepMonthly},
		{"--keep-yearly", policy.KeepYearly},
	}

	for _, k := range keep {
		if k.count != nil && *k.count > 0 {
			flags = append(flags, k.flag, strconv.Itoa(*k.count))
		}
	}

	if prune {
		flags = append(flags, "--prune")
	}

	return flags
}
