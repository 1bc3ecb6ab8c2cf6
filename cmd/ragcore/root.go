// Package main is the ragcore CLI entrypoint: a single "serve" command that
// wires every component of spec.md's RAG-augmented chat orchestration core
// together and runs the Chat Server. Grounded on the teacher's
// cmd/root/root.go (NewRootCmd/PersistentPreRunE logging setup) and
// cmd/root/serve.go/api.go (the server-subcommand flag and listener
// pattern), trimmed to this module's single long-running server command —
// ragcore carries none of the teacher's agent-file/run/eval/share/alias
// commands, which belong to a different product surface.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	logFile     io.Closer
}

func (f *rootFlags) setupLogging() error {
	level := slog.LevelInfo
	if f.debugMode {
		level = slog.LevelDebug
	}

	out := io.Writer(os.Stderr)
	if f.logFilePath != "" {
		lf, err := os.OpenFile(f.logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		f.logFile = lf
		out = lf
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "ragcore",
		Short: "ragcore - RAG-augmented chat orchestration server",
		Long:  "ragcore runs the chat server: retrieval-augmented chat sessions backed by a hybrid retriever, a streaming tool loop, and a background embedding worker.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo})))
				slog.Warn("falling back to stderr logging", "error", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: stderr)")

	cmd.AddCommand(newServeCmd())

	return cmd
}
