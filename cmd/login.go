package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/theirongolddev/cchat/internal/model"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	flagLoginName     string
	flagLoginStdin    bool
	flagLoginNoVerify bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key as a new active profile",
	Long: "Validate an Anthropic API key and store it encrypted as a new profile.\n\n" +
		"The key is read from CCHAT_API_KEY, from stdin with --stdin, or prompted for.",
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&flagLoginName, "name", "n", "Default", "Profile name")
	loginCmd.Flags().BoolVar(&flagLoginStdin, "stdin", false, "Read the key from the first line of stdin")
	loginCmd.Flags().BoolVar(&flagLoginNoVerify, "no-verify", false, "Store the key without validating it")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	secret, err := readSecret()
	if err != nil {
		return err
	}

	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var p model.Profile
	if flagLoginNoVerify {
		p, err = rt.Credentials.Store(ctx, secret, flagLoginName)
	} else {
		progress("  Validating key...\n")
		p, err = rt.Credentials.Login(ctx, secret, flagLoginName)
	}
	if err != nil {
		return err
	}

	fmt.Printf("  Stored profile %q (…%s) and made it active.\n", p.Name, p.KeySuffix)
	return nil
}

func readSecret() (string, error) {
	if v := strings.TrimSpace(os.Getenv("CCHAT_API_KEY")); v != "" {
		return v, nil
	}

	if flagLoginStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading key from stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	var secret string
	err := huh.NewInput().
		Title("Anthropic API key").
		Placeholder("sk-ant-...").
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("API key is required")
			}
			return nil
		}).
		Value(&secret).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(secret), nil
}
