package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelbay/transfer"
)

var (
	outputPath  string
	connections int
	timeout     time.Duration
	userAgent   string
	proxyURL    string
	authToken   string
	maxAttempts int
	retryDelay  time.Duration
	headers     []string
	debug       bool
)

var mbfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "mbfetch",
	Short:   "mbfetch is the modelbay artifact fetcher",
	Version: mbfetchVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		transfer.InitLogger(debug)
	},
}

func clientConfig() transfer.Config {
	cfg := transfer.DefaultConfig()
	cfg.RequestTimeout = timeout
	cfg.UserAgent = userAgent
	cfg.ProxyURL = proxyURL
	cfg.AuthToken = authToken
	cfg.Connections = connections
	cfg.Headers = parseHeaderArgs(headers)
	cfg.Retry.MaxAttempts = maxAttempts
	cfg.Retry.BaseDelay = retryDelay
	return cfg
}

func parseHeaderArgs(args []string) map[string]string {
	parsed := make(map[string]string)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, ":")
		if !ok {
			continue
		}
		parsed[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return parsed
}

func main() {
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", transfer.DefaultConnections, "Number of connections for chunked downloads")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "agent", "a", transfer.DefaultUserAgent, "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/SOCKS5 proxy URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token attached to every request")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "retries", 5, "Maximum attempts per request")
	rootCmd.PersistentFlags().DurationVar(&retryDelay, "retry-delay", 500*time.Millisecond, "Base delay between retries")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", nil, "Custom header (key: value), repeatable")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newJSONCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
