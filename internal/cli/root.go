package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"rollguard/internal/platform/config"
	"rollguard/internal/platform/logger"
)

// RootOptions holds global flags and the environment configuration every
// command starts from.
type RootOptions struct {
	Format   string
	LogLevel string
	Config   config.Config
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the rollguard operator CLI.
func NewRootCommand(cfg config.Config) *cobra.Command {
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "rollguard",
		Short: "Voter roll deduplication and integrity tooling",
		Long: `rollguard finds likely duplicate registrations and suspicious address
clusters in a voter roll, and appends to and verifies the hash-chained ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewClustersCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// logger writes diagnostics to stderr so JSON output stays parseable.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), o.LogLevel, "text")
}
