package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"

	"github.com/spf13/cobra"
)

var (
	flagAskNew          bool
	flagAskConversation string
	flagAskModel        string
	flagAskTemperature  float64
	flagAskMaxTokens    int
	flagAskSystem       string
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt...]",
	Short: "Send a prompt and print the reply",
	Long: "Send a prompt to the active conversation and print the reply.\n\n" +
		"With no arguments the prompt is read from stdin. Flags override the\n" +
		"stored request parameters for this request only.",
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&flagAskNew, "new", false, "Start a new conversation")
	askCmd.Flags().StringVarP(&flagAskConversation, "conversation", "c", "", "Continue the conversation with this ID or prefix")
	askCmd.Flags().StringVarP(&flagAskModel, "model", "m", "", "Model for this request")
	askCmd.Flags().Float64VarP(&flagAskTemperature, "temperature", "t", 0, "Sampling temperature, 0 to 1")
	askCmd.Flags().IntVar(&flagAskMaxTokens, "max-tokens", 0, "Maximum completion tokens")
	askCmd.Flags().StringVar(&flagAskSystem, "system", "", "System prompt for this request")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, os.Stdin)
	if err != nil {
		return err
	}
	if prompt == "" {
		return errors.New("empty prompt")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := requireSession(ctx, rt); err != nil {
		return err
	}

	switch {
	case flagAskConversation != "":
		conv, err := resolveConversation(rt.Conversations.List(), flagAskConversation)
		if err != nil {
			return err
		}
		if err := rt.Conversations.SetActive(ctx, conv.ID); err != nil {
			return err
		}
	case flagAskNew:
		rt.Conversations.Create(ctx, "")
	}

	overrides := askOverrides(cmd)
	if overrides != nil {
		merged := rt.Settings.Params().Merge(overrides)
		if err := merged.Validate(); err != nil {
			return err
		}
	}

	progress("  Waiting for %s...\n", rt.Settings.Params().Merge(overrides).Model)
	if err := rt.Chat.SubmitPrompt(ctx, prompt, overrides); err != nil {
		return err
	}

	conv := rt.Conversations.Active()
	if conv == nil || len(conv.Messages) == 0 {
		return errors.New("no reply recorded")
	}
	reply := conv.Messages[len(conv.Messages)-1]
	fmt.Println(reply.Content)

	if !flagQuiet {
		current := rt.Usage.Current()
		fmt.Fprintln(os.Stderr, cli.Muted(fmt.Sprintf("\n  %s · %s tokens · conversation %s · month %s",
			reply.Metadata.Model,
			cli.FormatTokens(reply.Metadata.Tokens),
			shortID(conv.ID),
			cli.FormatCost(current.Cost),
		)))
	}
	return nil
}

// readPrompt joins args, or reads all of r when there are none.
func readPrompt(args []string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// askOverrides builds per-request overrides from the flags the user set.
func askOverrides(cmd *cobra.Command) *model.ParamOverrides {
	var o model.ParamOverrides
	set := false
	if cmd.Flags().Changed("model") {
		o.Model = &flagAskModel
		set = true
	}
	if cmd.Flags().Changed("temperature") {
		o.Temperature = &flagAskTemperature
		set = true
	}
	if cmd.Flags().Changed("max-tokens") {
		o.MaxTokens = &flagAskMaxTokens
		set = true
	}
	if cmd.Flags().Changed("system") {
		o.SystemPrompt = &flagAskSystem
		set = true
	}
	if !set {
		return nil
	}
	return &o
}
