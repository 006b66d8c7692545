package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/theirongolddev/cchat/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := flagConfigPath
	if path == "" {
		path = config.ConfigPath()
	}
	fmt.Printf("  Config file: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Data directory: %s\n", config.DataDir(cfg))
	fmt.Printf("    Database:       %s\n", config.DBPath(cfg))
	fmt.Printf("    Log file:       %s\n", config.LogPath(cfg))
	fmt.Printf("    Log level:      %s\n", cfg.General.LogLevel)
	fmt.Println()

	fmt.Println("  [API]")
	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = "default"
	}
	fmt.Printf("    Base URL:      %s\n", baseURL)
	fmt.Printf("    Default model: %s\n", cfg.API.DefaultModel)
	fmt.Printf("    Timeout:       %s\n", cfg.API.Timeout())
	if cfg.API.RequestsPerMinute > 0 {
		fmt.Printf("    Rate limit:    %d requests/min\n", cfg.API.RequestsPerMinute)
	} else {
		fmt.Println("    Rate limit:    none")
	}
	if key := os.Getenv("CCHAT_API_KEY"); key != "" {
		fmt.Printf("    CCHAT_API_KEY: %s (used by `cchat login`)\n", maskAPIKey(key))
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Budget]")
	if cfg.Budget.MonthlyUSD != nil {
		fmt.Printf("    Monthly budget: $%.0f\n", *cfg.Budget.MonthlyUSD)
	} else {
		fmt.Println("    Monthly budget: not set")
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address: %s\n", cfg.Daemon.Addr)
	fmt.Println()

	if len(cfg.Pricing.Overrides) > 0 {
		fmt.Println("  [Pricing overrides]")
		names := make([]string, 0, len(cfg.Pricing.Overrides))
		for name := range cfg.Pricing.Overrides {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			o := cfg.Pricing.Overrides[name]
			fmt.Printf("    %-28s in %s  out %s\n", name, perMTok(o.InputPerMTok), perMTok(o.OutputPerMTok))
		}
		fmt.Println()
	}

	fmt.Println("  Run `cchat setup` to reconfigure.")
	return nil
}

func perMTok(v *float64) string {
	if v == nil {
		return "default"
	}
	return fmt.Sprintf("$%.2f/MTok", *v)
}
