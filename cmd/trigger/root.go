// trigger is the operator CLI for the log compliance service: start a job from an
// uploaded log, re-deliver a continuation, or show a job.
//
// Usage:
//
//	trigger start --bucket=<bucket> --key=<object> [--name=<document>]
//	trigger continue --job=<id> --phase=<2|3> [--name=<document>]
//	trigger show --job=<id>
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	server  string
	timeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Invoke and inspect log compliance jobs",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.server, "server", envOr("LOGC_SERVER", "http://localhost:8080"), "Service base URL")
	pf.DurationVar(&rootFlags.timeout, "timeout", 20*time.Minute, "Request timeout; a phase invocation can run for minutes")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
