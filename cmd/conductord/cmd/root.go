package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("conductord v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for conductord
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conductord",
		Short: "conductord - run a set of components under the conductor lifecycle controller",
		Long: `conductord loads a manifest of simulated components, starts them in dependency
order under the conductor lifecycle controller and reports their state over HTTP.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "json", "Log format (json or console)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewOrderCommand())
	cmd.AddCommand(NewConfigCommand())

	return cmd
}

// newLogger builds the zerolog logger selected by the persistent flags.
func newLogger(cmd *cobra.Command, out io.Writer) (zerolog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	w := out
	switch format {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("%w: %s", errUnknownLogFormat, format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "conductord").Logger(), nil
}
