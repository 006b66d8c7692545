package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/transcript"

	"github.com/spf13/cobra"
)

var (
	flagConvSearch    string
	flagConvTags      []string
	flagConvAnyTag    bool
	flagConvFavorites bool
	flagConvLimit     int
	flagTagClear      bool
	flagExportOut     string
	flagExportAll     bool
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs", "c"},
	Short:   "List and search saved conversations",
	Args:    cobra.NoArgs,
	RunE:    runConversations,
}

var convShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvShow,
}

var convRenameCmd = &cobra.Command{
	Use:   "rename <id> <title...>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConvRename,
}

var convTagCmd = &cobra.Command{
	Use:   "tag <id> [tags...]",
	Short: "Replace a conversation's tags",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConvTag,
}

var convFavCmd = &cobra.Command{
	Use:   "fav <id>",
	Short: "Toggle a conversation's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvFav,
}

var convRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvRm,
}

var convExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Write conversations as JSONL transcripts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConvExport,
}

var convImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>...",
	Short: "Import JSONL transcripts as new conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConvImport,
}

func init() {
	conversationsCmd.Flags().StringVarP(&flagConvSearch, "search", "s", "", "Match title or message text")
	conversationsCmd.Flags().StringSliceVar(&flagConvTags, "tag", nil, "Filter by tag (repeatable)")
	conversationsCmd.Flags().BoolVar(&flagConvAnyTag, "any", false, "Match any given tag instead of all")
	conversationsCmd.Flags().BoolVarP(&flagConvFavorites, "favorites", "f", false, "Only favorited conversations")
	conversationsCmd.Flags().IntVarP(&flagConvLimit, "limit", "n", 20, "Maximum rows to show (0 = all)")

	convTagCmd.Flags().BoolVar(&flagTagClear, "clear", false, "Remove all tags")
	convExportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output directory (default <data-dir>/exports)")
	convExportCmd.Flags().BoolVar(&flagExportAll, "all", false, "Export every conversation")

	conversationsCmd.AddCommand(convShowCmd, convRenameCmd, convTagCmd, convFavCmd, convRmCmd, convExportCmd, convImportCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func runConversations(_ *cobra.Command, _ []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var convs []*model.Conversation
	if flagConvAnyTag {
		convs = rt.Conversations.SearchAny(flagConvSearch, flagConvTags)
	} else {
		convs = rt.Conversations.Search(flagConvSearch, flagConvTags)
	}
	if flagConvFavorites {
		kept := convs[:0]
		for _, c := range convs {
			if c.Metadata.Favorited {
				kept = append(kept, c)
			}
		}
		convs = kept
	}
	if len(convs) == 0 {
		fmt.Println("\n  No conversations found.")
		return nil
	}

	sort.SliceStable(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	total := len(convs)
	if flagConvLimit > 0 && total > flagConvLimit {
		convs = convs[:flagConvLimit]
	}

	activeID := rt.Conversations.ActiveID()
	now := time.Now()
	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		mark := ""
		if c.ID == activeID {
			mark = "●"
		}
		if c.Metadata.Favorited {
			mark += "★"
		}
		rows = append(rows, []string{
			mark,
			shortID(c.ID),
			cli.Truncate(c.Title, 36),
			cli.FormatNumber(int64(len(c.Messages))),
			cli.FormatTokens(c.Metadata.TotalTokens),
			cli.FormatAgo(c.UpdatedAt, now),
			cli.Truncate(strings.Join(c.Tags, ","), 20),
		})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Conversations (%d of %d)", len(convs), total),
		Headers: []string{"", "ID", "Title", "Msgs", "Tokens", "Updated", "Tags"},
		Rows:    rows,
	}))
	return nil
}

func runConvShow(_ *cobra.Command, args []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	conv, err := resolveConversation(rt.Conversations.List(), args[0])
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(cli.Truncate(conv.Title, 50)))
	meta := fmt.Sprintf("  %s · %s · %s tokens", conv.ID, conv.Metadata.Model, cli.FormatTokens(conv.Metadata.TotalTokens))
	if len(conv.Tags) > 0 {
		meta += " · #" + strings.Join(conv.Tags, " #")
	}
	fmt.Println(cli.Muted(meta))

	for _, m := range conv.Messages {
		fmt.Println()
		label := strings.ToUpper(string(m.Role))
		if m.IsError() {
			label = cli.Warn("ERROR")
		}
		fmt.Printf("  %s  %s\n", label, cli.Muted(m.CreatedAt.Local().Format("2006-01-02 15:04")))
		for _, line := range strings.Split(m.Content, "\n") {
			fmt.Println("  " + line)
		}
	}
	fmt.Println()
	return nil
}

func runConvRename(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	conv, err := resolveConversation(rt.Conversations.List(), args[0])
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return errors.New("title must not be blank")
	}
	if err := rt.Conversations.Rename(ctx, conv.ID, title); err != nil {
		return err
	}
	fmt.Printf("  Renamed %s to %q\n", shortID(conv.ID), title)
	return nil
}

func runConvTag(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	conv, err := resolveConversation(rt.Conversations.List(), args[0])
	if err != nil {
		return err
	}
	tags := args[1:]
	if len(tags) == 0 && !flagTagClear {
		return errors.New("give tags to set, or --clear to remove them all")
	}
	if flagTagClear {
		tags = nil
	}
	if err := rt.Conversations.SetTags(ctx, conv.ID, tags); err != nil {
		return err
	}

	updated, err := rt.Conversations.Get(conv.ID)
	if err != nil {
		return err
	}
	if len(updated.Tags) == 0 {
		fmt.Printf("  Cleared tags on %s\n", shortID(conv.ID))
	} else {
		fmt.Printf("  Tags on %s: %s\n", shortID(conv.ID), strings.Join(updated.Tags, ", "))
	}
	return nil
}

func runConvFav(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	conv, err := resolveConversation(rt.Conversations.List(), args[0])
	if err != nil {
		return err
	}
	fav, err := rt.Conversations.ToggleFavorite(ctx, conv.ID)
	if err != nil {
		return err
	}
	if fav {
		fmt.Printf("  ★ %s favorited\n", conv.Title)
	} else {
		fmt.Printf("  %s unfavorited\n", conv.Title)
	}
	return nil
}

func runConvRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	conv, err := resolveConversation(rt.Conversations.List(), args[0])
	if err != nil {
		return err
	}
	if err := rt.Conversations.Delete(ctx, conv.ID); err != nil {
		return err
	}
	fmt.Printf("  Deleted %q\n", conv.Title)
	return nil
}

func runConvExport(_ *cobra.Command, args []string) error {
	rt, err := openApp(context.Background(), os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	dir := flagExportOut
	if dir == "" {
		dir = rt.ExportDir()
	}

	var convs []*model.Conversation
	switch {
	case flagExportAll:
		convs = rt.Conversations.List()
	case len(args) == 1:
		conv, err := resolveConversation(rt.Conversations.List(), args[0])
		if err != nil {
			return err
		}
		convs = []*model.Conversation{conv}
	default:
		active := rt.Conversations.Active()
		if active == nil {
			return errors.New("no active conversation; pass an ID or --all")
		}
		convs = []*model.Conversation{active}
	}

	for _, c := range convs {
		path, err := transcript.ExportFile(dir, c)
		if err != nil {
			return err
		}
		fmt.Printf("  %s → %s\n", shortID(c.ID), path)
	}
	progress("  Exported %d conversation(s)\n", len(convs))
	return nil
}

func runConvImport(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var failed int
	for _, path := range args {
		res := transcript.ReadFile(path)
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", path, res.Err)
			failed++
			continue
		}
		conv := rt.Conversations.Import(ctx, res.Conversation)
		line := fmt.Sprintf("  %s → %s %q (%d messages)", path, shortID(conv.ID), conv.Title, len(conv.Messages))
		if res.ParseErrors > 0 {
			line += cli.Warn(fmt.Sprintf(", skipped %d bad lines", res.ParseErrors))
		}
		fmt.Println(line)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be imported", failed, len(args))
	}
	return nil
}
