// Package models contains the data structures used throughout lvrestic.
package models

import "time"

// Config holds the complete configuration for a backup or cleanup run.
type Config struct {
	MountsDir      string
	TargetVG       string
	TargetLV       string
	Password       string
	Retention      RetentionPolicy
	Prune          bool // set from the --prune flag, not the config file
	CommandTimeout time.Duration
	Sources        []Source
}

// Source identifies one backupable logical volume.
type Source struct {
	VG      string
	LV      string
	Options []string
}

// HasOption reports whether the source declares the given free-form option.
func (s Source) HasOption(name string) bool {
	for _, opt := range s.Options {
		if opt == name {
			return true
		}
	}
	return false
}

// RetentionPolicy defines how many restic snapshots to keep per bucket.
// A nil count means the bucket was not configured.
type RetentionPolicy struct {
	KeepHourly  *int
	KeepDaily   *int
	KeepWeekly  *int
	KeepMonthly *int
	KeepYearly  *int
}

// Empty reports whether no retention bucket is configured.
func (p RetentionPolicy) Empty() bool {
	return p.KeepHourly == nil && p.KeepDaily == nil && p.KeepWeekly == nil &&
		p.KeepMonthly == nil && p.KeepYearly == nil
}
