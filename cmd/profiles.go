package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"profile"},
	Short:   "List stored API-key profiles",
	Args:    cobra.NoArgs,
	RunE:    runProfiles,
}

var profilesUseCmd = &cobra.Command{
	Use:   "use <name|id>",
	Short: "Make a profile active",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesUse,
}

var profilesRmCmd = &cobra.Command{
	Use:   "rm <name|id>",
	Short: "Remove a profile and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesRm,
}

var profilesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the active profile's key against the API",
	Args:  cobra.NoArgs,
	RunE:  runProfilesCheck,
}

func init() {
	profilesCmd.AddCommand(profilesUseCmd, profilesRmCmd, profilesCheckCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	profiles := rt.Credentials.Profiles()
	if len(profiles) == 0 {
		fmt.Println("\n  No profiles. Run `cchat login` to add an API key.")
		return nil
	}
	active, _ := rt.Credentials.Active()

	now := time.Now()
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		mark := ""
		if p.ID == active.ID {
			mark = "●"
		}
		rows = append(rows, []string{
			mark,
			p.Name,
			"…" + p.KeySuffix,
			p.CreatedAt.Local().Format("2006-01-02"),
			cli.FormatAgo(p.LastUsedAt, now),
			shortID(p.ID),
		})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Profiles",
		Headers: []string{"", "Name", "Key", "Created", "Last used", "ID"},
		Rows:    rows,
	}))
	return nil
}

func runProfilesUse(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	p, err := resolveProfile(rt.Credentials.Profiles(), args[0])
	if err != nil {
		return err
	}
	if err := rt.Credentials.Activate(ctx, p.ID); err != nil {
		return err
	}
	fmt.Printf("  Active profile: %s (…%s)\n", p.Name, p.KeySuffix)
	return nil
}

func runProfilesRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	p, err := resolveProfile(rt.Credentials.Profiles(), args[0])
	if err != nil {
		return err
	}
	if err := rt.Credentials.Remove(ctx, p.ID); err != nil {
		return err
	}
	fmt.Printf("  Removed profile %s\n", p.Name)
	if next, ok := rt.Credentials.Active(); ok {
		fmt.Printf("  Active profile: %s\n", next.Name)
	} else {
		fmt.Println("  No profiles left. Run `cchat login` to add one.")
	}
	return nil
}

func runProfilesCheck(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := requireSession(ctx, rt); err != nil {
		return err
	}
	p, _ := rt.Credentials.Active()
	fmt.Printf("  %s (…%s): key accepted\n", p.Name, p.KeySuffix)
	return nil
}
