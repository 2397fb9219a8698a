package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_LoadReader_MinimalConfig(t *testing.T) {
	yaml := `
mounts_dir: /mnt/backup
TargetVG: vg0
TargetLV: backup
password: secret
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "/mnt/backup", cfg.MountsDir)
	assert.Equal(t, "vg0", cfg.TargetVG)
	assert.Equal(t, "backup", cfg.TargetLV)
	assert.Equal(t, "secret", cfg.Password)
	assert.Empty(t, cfg.Sources)
	// Check defaults
	assert.True(t, cfg.Retention.Empty())
	assert.Equal(t, 5*time.Minute, cfg.CommandTimeout)
}

func TestParser_LoadReader_FullConfig(t *testing.T) {
	yaml := `
mounts_dir: /mnt/backup
TargetVG: vg0
TargetLV: backup
password: secret123
command_timeout: 10m

hourlySnapshots: 24
dailySnapshots: 7
weeklySnapshots: 4
monthlySnapshots: 6
yearlySnapshots: 2

VGs:
  - name: vg0
    LVs:
      - name: data
      - name: www-data
        options:
          - xfs
  - name: vg1
    LVs:
      - name: vm-disk
        options:
          - raw
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.CommandTimeout)

	require.NotNil(t, cfg.Retention.KeepHourly)
	assert.Equal(t, 24, *cfg.Retention.KeepHourly)
	require.NotNil(t, cfg.Retention.KeepDaily)
	assert.Equal(t, 7, *cfg.Retention.KeepDaily)
	require.NotNil(t, cfg.Retention.KeepWeekly)
	assert.Equal(t, 4, *cfg.Retention.KeepWeekly)
	require.NotNil(t, cfg.Retention.KeepMonthly)
	assert.Equal(t, 6, *cfg.Retention.KeepMonthly)
	require.NotNil(t, cfg.Retention.KeepYearly)
	assert.Equal(t, 2, *cfg.Retention.KeepYearly)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "vg0", cfg.Sources[0].VG)
	assert.Equal(t, "data", cfg.Sources[0].LV)
	assert.Empty(t, cfg.Sources[0].Options)
	assert.Equal(t, "www-data", cfg.Sources[1].LV)
	assert.Equal(t, []string{"xfs"}, cfg.Sources[1].Options)
	assert.Equal(t, "vg1", cfg.Sources[2].VG)
	assert.Equal(t, "vm-disk", cfg.Sources[2].LV)
	assert.True(t, cfg.Sources[2].HasOption("raw"))
}

func TestParser_LoadReader_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing mounts_dir",
			yaml:    "TargetVG: vg0\nTargetLV: backup\npassword: x\n",
			wantErr: "mounts_dir",
		},
		{
			name:    "missing TargetVG",
			yaml:    "mounts_dir: /mnt\nTargetLV: backup\npassword: x\n",
			wantErr: "TargetVG",
		},
		{
			name:    "missing TargetLV",
			yaml:    "mounts_dir: /mnt\nTargetVG: vg0\npassword: x\n",
			wantErr: "TargetLV",
		},
		{
			name:    "missing password",
			yaml:    "mounts_dir: /mnt\nTargetVG: vg0\nTargetLV: backup\n",
			wantErr: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			_, err := parser.LoadReader(tt.yaml)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParser_LoadReader_NegativeRetention(t *testing.T) {
	yaml := `
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: x
dailySnapshots: -1
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestParser_LoadReader_ZeroRetentionIsSet(t *testing.T) {
	yaml := `
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: x
weeklySnapshots: 0
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	// Zero is a configured value, distinct from absent.
	require.NotNil(t, cfg.Retention.KeepWeekly)
	assert.Equal(t, 0, *cfg.Retention.KeepWeekly)
	assert.Nil(t, cfg.Retention.KeepDaily)
}

func TestParser_LoadReader_PasswordEnvExpansion(t *testing.T) {
	t.Setenv("LVRESTIC_TEST_PASSWORD", "from-env")

	yaml := `
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: ${LVRESTIC_TEST_PASSWORD}
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
}

func TestParser_LoadReader_LVWithoutName(t *testing.T) {
	yaml := `
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: x
VGs:
  - name: vg0
    LVs:
      - options: [xfs]
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a name")
}

func TestParser_LoadFile(t *testing.T) {
	content := `
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: x
`
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	parser := NewParser()
	cfg, err := parser.LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "vg0", cfg.TargetVG)
}

func TestValidate_NilConfig(t *testing.T) {
	err := Validate(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestValidate_ValidConfig(t *testing.T) {
	parser := NewParser()
	cfg, err := parser.LoadReader(`
mounts_dir: /mnt
TargetVG: vg0
TargetLV: backup
password: x
`)
	require.NoError(t, err)

	assert.NoError(t, Validate(cfg))
}
