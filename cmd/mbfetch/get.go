package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelbay/transfer"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [URL]",
		Short: "Download a file via HTTP/HTTPS, S3, or git",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			url := args[0]

			client, err := transfer.New(clientConfig())
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			dest := outputPath
			if dest == "" {
				// Prefer the server's suggested filename over the URL tail.
				dest = filepath.Base(url)
				if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
					if info, err := client.Stat(ctx, url); err == nil && info.Filename != "" {
						dest = info.Filename
					}
				}
			}

			sink := newConsoleSink(filepath.Base(dest))
			if err := client.DownloadFile(ctx, url, dest, sink); err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			printSuccess("Saved to " + dest)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	return cmd
}
