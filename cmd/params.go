package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"

	"github.com/spf13/cobra"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the stored request parameters",
	Args:  cobra.NoArgs,
	RunE:  runParams,
}

var paramsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change request parameters",
	Long: "Change stored request parameters. Keys: model, temperature, max-tokens,\n" +
		"top-p, top-k (\"none\" to unset), stop (comma separated, empty to clear), system.",
	Example: "  cchat params set temperature=0.3 max-tokens=2048\n" +
		"  cchat params set stop='###,END' top-k=none",
	Args: cobra.MinimumNArgs(1),
	RunE: runParamsSet,
}

var paramsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default request parameters",
	Args:  cobra.NoArgs,
	RunE:  runParamsReset,
}

func init() {
	paramsCmd.AddCommand(paramsSetCmd, paramsResetCmd)
	rootCmd.AddCommand(paramsCmd)
}

func runParams(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	printParams(rt.Settings.Params())
	return nil
}

func runParamsSet(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	next := rt.Settings.Params()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		if err := applyParam(&next, key, value); err != nil {
			return err
		}
	}
	if err := rt.Settings.SetParams(ctx, next); err != nil {
		return err
	}
	printParams(rt.Settings.Params())
	return nil
}

func runParamsReset(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	defaults := model.DefaultParams()
	if m := rt.Config.API.DefaultModel; m != "" {
		defaults.Model = m
	}
	if err := rt.Settings.SetParams(ctx, defaults); err != nil {
		return err
	}
	printParams(rt.Settings.Params())
	return nil
}

// applyParam parses one key=value assignment into p. Range checks are
// left to RequestParameters.Validate.
func applyParam(p *model.RequestParameters, key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "model":
		p.Model = value
	case "temperature", "temp":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature: %w", err)
		}
		p.Temperature = v
	case "max-tokens", "max_tokens", "maxtokens":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max-tokens: %w", err)
		}
		p.MaxTokens = v
	case "top-p", "top_p", "topp":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("top-p: %w", err)
		}
		p.TopP = v
	case "top-k", "top_k", "topk":
		if value == "" || strings.EqualFold(value, "none") {
			p.TopK = nil
			return nil
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("top-k: %w", err)
		}
		p.TopK = &v
	case "stop", "stop-sequences":
		p.StopSequences = nil
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				p.StopSequences = append(p.StopSequences, s)
			}
		}
	case "system", "system-prompt":
		p.SystemPrompt = value
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	return nil
}

func printParams(p model.RequestParameters) {
	topK := "none"
	if p.TopK != nil {
		topK = strconv.Itoa(*p.TopK)
	}
	stop := cli.Muted("none")
	if len(p.StopSequences) > 0 {
		quoted := make([]string, len(p.StopSequences))
		for i, s := range p.StopSequences {
			quoted[i] = strconv.Quote(s)
		}
		stop = strings.Join(quoted, " ")
	}
	system := cli.Muted("none")
	if p.SystemPrompt != "" {
		system = cli.Truncate(strings.ReplaceAll(p.SystemPrompt, "\n", " "), 60)
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Request Parameters",
		Headers: []string{"Parameter", "Value"},
		Rows: [][]string{
			{"model", p.Model},
			{"temperature", strconv.FormatFloat(p.Temperature, 'f', -1, 64)},
			{"max-tokens", cli.FormatNumber(int64(p.MaxTokens))},
			{"top-p", strconv.FormatFloat(p.TopP, 'f', -1, 64)},
			{"top-k", topK},
			{"stop", stop},
			{"system", system},
		},
	}))
}
