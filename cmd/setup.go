package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	Args:  cobra.NoArgs,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	themeName := cfg.Appearance.Theme
	defaultModel := cfg.API.DefaultModel
	logLevel := cfg.General.LogLevel
	budget := ""
	if cfg.Budget.MonthlyUSD != nil {
		budget = strconv.FormatFloat(*cfg.Budget.MonthlyUSD, 'f', -1, 64)
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themeOpts = append(themeOpts, huh.NewOption(name, name))
	}
	modelOpts := make([]huh.Option[string], 0)
	for _, name := range config.KnownModels() {
		modelOpts = append(modelOpts, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to cchat").
				Description("Answers are saved to "+configPathForSave()+".\nAdd an API key afterwards with `cchat login`."),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&themeName),
			huh.NewSelect[string]().
				Title("Default model").
				Description("Used until you change request parameters.").
				Options(modelOpts...).
				Value(&defaultModel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Monthly budget (USD)").
				Description("Leave blank for no budget.").
				Value(&budget).
				Validate(validateBudget),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&logLevel),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled; nothing saved.")
			return nil
		}
		return err
	}

	cfg.Appearance.Theme = themeName
	cfg.API.DefaultModel = defaultModel
	cfg.General.LogLevel = logLevel
	cfg.Budget.MonthlyUSD = nil
	if b := strings.TrimSpace(budget); b != "" {
		v, _ := strconv.ParseFloat(b, 64)
		cfg.Budget.MonthlyUSD = &v
	}

	path := configPathForSave()
	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `cchat setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func configPathForSave() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	return config.ConfigPath()
}

func validateBudget(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return errors.New("enter a positive amount or leave blank")
	}
	return nil
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
