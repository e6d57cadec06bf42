package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/modelbay/transfer"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DEST_PATH]",
		Short: "Remove leftover .partN files from an interrupted download",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := transfer.CleanParts(args[0]); err != nil {
				printError("Error cleaning up part files")
				os.Exit(1)
			}
			printSuccess("Part files cleaned up")
		},
	}
}
