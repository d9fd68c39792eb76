// Command benor runs local benor clusters and talks to individual nodes.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "benor",
		Short: "Run and inspect randomized binary consensus nodes",

		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(&f),
		newStatusCmd(&f),
		newStartCmd(&f),
		newStopCmd(&f),
		newStateCmd(&f),
	)

	return cmd
}

// logger builds the text logger for cmd, writing to its error stream.
func (f *rootFlags) logger(cmd *cobra.Command) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
