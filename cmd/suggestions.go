package cmd

import (
	"github.com/spf13/cobra"
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Review pending face suggestions",
	Long:  `Commands for listing, accepting and rejecting pending face-to-person suggestions.`,
}

func init() {
	rootCmd.AddCommand(suggestionsCmd)
}
