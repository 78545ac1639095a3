// Package cmd holds the cobra commands of the pulseflow binary.
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// NewRootCommand builds the pulseflow command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pulseflow",
		Short:         "Replay detector frames onto a message broker",
		Long:          "pulseflow streams recorded or synthetic neutron event frames to Kafka, NATS, RabbitMQ and other brokers, run after run, as a live instrument would.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("log-level", "", "Log level: trace|debug|info|warn|error (default from config)")
	root.PersistentFlags().String("log-format", "", "Log format: console|json (default from config)")

	root.AddCommand(newStreamCommand())
	root.AddCommand(newDecodeCommand())
	return root
}

func newLogger(w io.Writer, level, format, command string, quiet bool) logging.ServiceLogger {
	zl := logging.NewZerolog(logging.ZerologOptions{
		Level:  level,
		Format: format,
		Output: w,
		Quiet:  quiet,
	})
	return logging.NewZerologServiceLogger(zl.With().Str("command", command).Logger())
}

// persistentString returns a root level flag value, or fallback when unset.
func persistentString(cmd *cobra.Command, name, fallback string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return fallback
	}
	return f.Value.String()
}
