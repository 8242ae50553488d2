package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"globalchat/pkg/types"
)

var (
	historyViewer string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print stored messages visible to a user",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyViewer, "viewer", "", "user whose view of the history is printed (required)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of most recent messages")
	_ = historyCmd.MarkFlagRequired("viewer")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	messages, err := store.ListMessages(cmd.Context(), historyViewer, 0, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %d message(s) visible to %s ", len(messages), historyViewer)))

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Time", "From", "To", "Lang", "Content", "Translations"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)

	// Oldest first, the way a chat reads
	for _, msg := range lo.Reverse(messages) {
		table.Append(historyRow(msg))
	}
	table.Render()
	return nil
}

func historyRow(msg *types.Message) []string {
	to := "everyone"
	if msg.RecipientID != nil {
		to = *msg.RecipientID
	}
	var langs []string
	if msg.Translations != nil {
		langs = lo.Keys(msg.Translations.Snapshot())
		sort.Strings(langs)
	}
	return []string{
		fmt.Sprint(msg.ID),
		msg.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		msg.SenderID,
		to,
		msg.OriginalLanguage,
		truncate(msg.Content, 60),
		strings.Join(langs, ","),
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
