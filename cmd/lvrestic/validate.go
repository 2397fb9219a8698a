package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without touching any volume.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return fmt.Errorf("config file is required (--config)")
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Mounts dir: %s\n", cfg.MountsDir)
	fmt.Printf("  Target volume: %s/%s\n", cfg.TargetVG, cfg.TargetLV)
	fmt.Printf("  Password: (configured)\n")
	fmt.Printf("  Command timeout: %s\n", cfg.CommandTimeout)
	fmt.Println()
	fmt.Println("Retention Policy:")
	printKeep := func(name string, count *int) {
		if count != nil {
			fmt.Printf("  Keep %s: %d\n", name, *count)
		}
	}
	printKeep("hourly", cfg.Retention.KeepHourly)
	printKeep("daily", cfg.Retention.KeepDaily)
	printKeep("weekly", cfg.Retention.KeepWeekly)
	printKeep("monthly", cfg.Retention.KeepMonthly)
	printKeep("yearly", cfg.Retention.KeepYearly)
	if cfg.Retention.Empty() {
		fmt.Println("  (none configured)")
	}
	fmt.Println()
	fmt.Printf("Sources (%d):\n", len(cfg.Sources))
	for _, src := range cfg.Sources {
		if len(src.Options) > 0 {
			fmt.Printf("  %s/%s (%s)\n", src.VG, src.LV, strings.Join(src.Options, ", "))
		} else {
			fmt.Printf("  %s/%s\n", src.VG, src.LV)
		}
	}

	return nil
}
