package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/usage"

	"github.com/spf13/cobra"
)

var (
	flagDailyDays  int
	flagModelsDays int
	flagUsageModel string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Monthly spend, projection and budget",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var usageDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Per-day usage table",
	Args:  cobra.NoArgs,
	RunE:  runUsageDaily,
}

var usageModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Per-model usage table",
	Args:  cobra.NoArgs,
	RunE:  runUsageModels,
}

func init() {
	usageDailyCmd.Flags().IntVarP(&flagDailyDays, "days", "n", 14, "Number of days to show")
	usageDailyCmd.Flags().StringVar(&flagUsageModel, "model", "", "Only count this model")
	usageModelsCmd.Flags().IntVarP(&flagModelsDays, "days", "n", 30, "Time window in days (0 = all time)")
	usageCmd.AddCommand(usageDailyCmd, usageModelsCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsage(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	now := time.Now()
	current := rt.Usage.Current()
	budget := rt.Budget()

	period := current.Period
	if period == "" {
		period = now.Format("2006-01")
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("CCHAT USAGE  " + period))
	fmt.Println()
	fmt.Printf("  %-16s %s\n", "Requests", cli.FormatNumber(int64(current.Requests)))
	fmt.Printf("  %-16s %s in / %s out\n", "Tokens",
		cli.FormatTokens(current.PromptTokens), cli.FormatTokens(current.CompletionTokens))
	fmt.Printf("  %-16s %s\n", "Spend", cli.FormatCost(current.Cost))
	fmt.Printf("  %-16s %s %s\n", "Projected", cli.FormatCost(budget.ProjectedMonthly),
		cli.Muted("(7-day daily average × 30)"))

	if budget.CustomBudget != nil {
		fmt.Printf("  %-16s %s\n", "Budget", cli.RenderBudgetBar(budget.CurrentSpend, *budget.CustomBudget, 30))
		line := fmt.Sprintf("%s used, %d days left", cli.FormatPercent(budget.BudgetUsedPercent), budget.DaysRemaining)
		if budget.ProjectedMonthly > *budget.CustomBudget {
			line = cli.Warn(line + ", projected over budget")
		} else {
			line = cli.Muted(line)
		}
		fmt.Printf("  %-16s %s\n", "", line)
	} else {
		fmt.Printf("  %-16s %s\n", "Budget", cli.Muted("not set (budget.monthly_usd in config)"))
	}

	since := now.AddDate(0, 0, -13)
	days := usage.DailySeries(rt.Usage.Summarize(usage.LastDays(14, now)), since, now)
	values := make([]float64, len(days))
	for i, d := range days {
		values[len(days)-1-i] = d.Cost
	}
	fmt.Println()
	fmt.Printf("  %-16s %s\n", "Last 14 days", cli.RenderSparkline(values))

	if msg := rt.Usage.Err(); msg != "" {
		fmt.Println()
		fmt.Println(cli.Warn("  " + msg))
	}
	fmt.Println()
	return nil
}

func runUsageDaily(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	days := flagDailyDays
	if days <= 0 {
		days = 14
	}
	now := time.Now()
	f := usage.LastDays(days, now)
	f.Model = flagUsageModel
	sum := rt.Usage.Summarize(f)
	series := usage.DailySeries(sum, now.AddDate(0, 0, -(days-1)), now)

	rows := make([][]string, 0, len(series)+1)
	for _, d := range series {
		rows = append(rows, []string{
			d.Date,
			cli.FormatNumber(int64(d.Requests)),
			cli.FormatTokens(d.PromptTokens),
			cli.FormatTokens(d.CompletionTokens),
			cli.FormatCost(d.Cost),
		})
	}
	rows = append(rows, []string{
		"Total",
		cli.FormatNumber(int64(sum.Requests)),
		cli.FormatTokens(sum.PromptTokens),
		cli.FormatTokens(sum.CompletionTokens),
		cli.FormatCost(sum.Cost),
	})

	title := fmt.Sprintf("Daily usage, last %d days", days)
	if flagUsageModel != "" {
		title += " (" + flagUsageModel + ")"
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   title,
		Headers: []string{"Date", "Requests", "Input", "Output", "Cost"},
		Rows:    rows,
	}))
	return nil
}

func runUsageModels(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sum := rt.Usage.Summarize(usage.LastDays(flagModelsDays, time.Now()))
	models := sum.Models()
	if len(models) == 0 {
		fmt.Println("\n  No usage recorded in this window.")
		return nil
	}

	rows := make([][]string, 0, len(models))
	for _, m := range models {
		share := 0.0
		if sum.Cost > 0 {
			share = m.Cost / sum.Cost * 100
		}
		rows = append(rows, []string{
			m.Model,
			cli.FormatNumber(int64(m.Requests)),
			cli.FormatTokens(m.PromptTokens),
			cli.FormatTokens(m.CompletionTokens),
			cli.FormatCost(m.Cost),
			cli.FormatPercent(share),
		})
	}

	title := "Usage by model, all time"
	if flagModelsDays > 0 {
		title = fmt.Sprintf("Usage by model, last %d days", flagModelsDays)
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   title,
		Headers: []string{"Model", "Requests", "Input", "Output", "Cost", "Share"},
		Rows:    rows,
	}))
	return nil
}
