// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/lvrestic/internal/models"
	"github.com/spf13/viper"
)

// defaultCommandTimeout bounds every external command invocation unless
// the config file overrides it.
const defaultCommandTimeout = 5 * time.Minute

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// vgEntry mirrors the VGs list in the config file.
type vgEntry struct {
	Name string    `mapstructure:"name"`
	LVs  []lvEntry `mapstructure:"lvs"`
}

type lvEntry struct {
	Name    string   `mapstructure:"name"`
	Options []string `mapstructure:"options"`
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		MountsDir: p.v.GetString("mounts_dir"),
		TargetVG:  p.v.GetString("targetvg"),
		TargetLV:  p.v.GetString("targetlv"),
		Password:  p.expandEnv(p.v.GetString("password")),
	}

	if cfg.MountsDir == "" {
		return nil, fmt.Errorf("mounts_dir is required")
	}
	if cfg.TargetVG == "" {
		return nil, fmt.Errorf("TargetVG is required")
	}
	if cfg.TargetLV == "" {
		return nil, fmt.Errorf("TargetLV is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	retention, err := p.parseRetention()
	if err != nil {
		return nil, err
	}
	cfg.Retention = retention

	cfg.CommandTimeout = defaultCommandTimeout
	if p.v.IsSet("command_timeout") {
		cfg.CommandTimeout = p.v.GetDuration("command_timeout")
		if cfg.CommandTimeout <= 0 {
			return nil, fmt.Errorf("command_timeout must be a positive duration")
		}
	}

	var vgs []vgEntry
	if err := p.v.UnmarshalKey("vgs", &vgs); err != nil {
		return nil, fmt.Errorf("parsing VGs: %w", err)
	}
	for _, vg := range vgs {
		if vg.Name == "" {
			return nil, fmt.Errorf("every VG entry needs a name")
		}
		for _, lv := range vg.LVs {
			if lv.Name == "" {
				return nil, fmt.Errorf("every LV entry in VG %s needs a name", vg.Name)
			}
			cfg.Sources = append(cfg.Sources, models.Source{
				VG:      vg.Name,
				LV:      lv.Name,
				Options: lv.Options,
			})
		}
	}

	return cfg, nil
}

func (p *Parser) parseRetention() (models.RetentionPolicy, error) {
	var policy models.RetentionPolicy

	buckets := []struct {
		key  string
		dest **int
	}{
		{"hourlysnapshots", &policy.KeepHourly},
		{"dailysnapshots", &policy.KeepDaily},
		{"weeklysnapshots", &policy.KeepWeekly},
		{"monthlysnapshots", &policy.KeepMonthly},
		{"yearlysnapshots", &policy.KeepYearly},
	}

	for _, b := range buckets {
		if !p.v.IsSet(b.key) {
			continue
		}
		n := p.v.GetInt(b.key)
		if n < 0 {
			return policy, fmt.Errorf("%s must be a non-negative integer", b.key)
		}
		count := n
		*b.dest = &count
	}

	return policy, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.MountsDir == "" {
		return fmt.Errorf("mounts_dir is required")
	}
	if cfg.TargetVG == "" || cfg.TargetLV == "" {
		return fmt.Errorf("TargetVG and TargetLV are required")
	}
	if cfg.Password == "" {
		return fmt.Errorf("password is required")
	}

	for _, src := range cfg.Sources {
		if src.VG == "" || src.LV == "" {
			return fmt.Errorf("every source needs a volume group and a logical volume name")
		}
	}

	return nil
}
