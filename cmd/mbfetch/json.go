package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelbay/transfer"
)

func newJSONCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "json [URL]",
		Short: "Fetch a JSON API response and print it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, err := transfer.New(clientConfig())
			if err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			defer client.Close()

			values := url.Values{}
			for _, p := range params {
				if k, v, ok := strings.Cut(p, "="); ok {
					values.Add(k, v)
				}
			}

			var out any
			if err := client.GetJSON(context.Background(), args[0], values, &out); err != nil {
				printError(err.Error())
				os.Exit(1)
			}
			pretty, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(pretty))
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "q", nil, "Query parameter (key=value), repeatable")
	return cmd
}
