package cmd

import (
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage detected faces",
	Long:  `Commands for ingesting faces and running the assignment pipeline over them.`,
}

func init() {
	rootCmd.AddCommand(facesCmd)
}
