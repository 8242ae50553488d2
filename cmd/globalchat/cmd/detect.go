package cmd

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"globalchat/internal/translation"
)

var detectCmd = &cobra.Command{
	Use:   "detect <text>...",
	Short: "Identify the language of a text offline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	detection := translation.Detect(strings.Join(args, " "))

	style := color.New(color.FgGreen, color.OpBold)
	if !detection.Reliable {
		style = color.New(color.FgYellow)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s confidence=%.2f reliable=%t\n",
		style.Render(detection.Language),
		translation.DisplayName(detection.Language),
		detection.Confidence,
		detection.Reliable)
	return nil
}
