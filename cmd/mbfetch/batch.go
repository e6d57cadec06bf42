package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modelbay/transfer"
)

func newBatchCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch [LIST_FILE]",
		Short: "Download every entry of a YAML list",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := transfer.LoadBatchFile(args[0])
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}

			client, err := transfer.New(clientConfig())
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			err = client.DownloadBatch(ctx, entries, workers, func(entry transfer.BatchEntry) transfer.ProgressSink {
				return newConsoleSink(filepath.Base(entry.OutputPath))
			})
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			printSuccess(fmt.Sprintf("Downloaded %d entries", len(entries)))
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Concurrent downloads")
	return cmd
}
