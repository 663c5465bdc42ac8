// Command authstatus runs the demo session API and a terminal controller that
// follows a client's session.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "authstatus",
		Short: "Session-aware protected data controller",
		Long: `authstatus follows a client's sign-in state through Redis and fetches
protected data with a bearer credential whenever the session changes.

  serve     run the demo API (login, logout, protected data, metrics)
  watch     follow one client id and print every state change
  loadtest  measure sign-in to payload latency across many clients`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(
		serveCmd(&flags),
		watchCmd(&flags),
		loadtestCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func (f *globalFlags) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", f.logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(f.logFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", f.logFormat)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "authstatus %s (%s)\n", version, commit)
		},
	}
}
