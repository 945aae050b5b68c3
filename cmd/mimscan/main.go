// mimscan runs approach-curve imaging scans.
//
// Usage:
//
//	mimscan measure [--params=<file>] [--fast=<start,stop,n>] [--slow=<start,stop,n>] [--feedback] [--port=<dev>]
package main

import (
	"fmt"
	"os"

	"github.com/mastercactapus/mimscan/logging"
	"github.com/spf13/cobra"
)

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "mimscan",
	Short: "Approach-curve acquisition with z feedback",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(rootFlags.logLevel), rootFlags.logFormat, os.Stderr)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error).")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text or json).")

	rootCmd.AddCommand(measureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
