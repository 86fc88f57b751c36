// Command seafhttpd serves the streaming multipart upload/update endpoints:
// it resolves upload tokens, receives file payloads via the recv state
// machine, and hands completed files to a Backend (filesystem or S3).
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "seafhttpd",
		Short:         "Streaming multipart upload service",
		Long:          `seafhttpd receives large file uploads over HTTP in constant memory and hands them to a content-addressed file repository backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("seafhttpd %s (commit %s, built %s, %s)\n", version, commit, date, runtime.Version())
		},
	}
}
