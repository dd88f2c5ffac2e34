// Package cmd defines the sitemirror CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemirror/internal/config"
	"github.com/JakeFAU/sitemirror/internal/logging"
	"github.com/JakeFAU/sitemirror/internal/mirror"
)

// Exit codes.
const (
	exitOK             = 0
	exitFailure        = 1
	exitMalformedInput = 2
)

// newLogger is a variable so tests can silence command output.
var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Development: cfg.Development,
		Level:       cfg.Level,
		File:        cfg.File,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
		MaxAgeDays:  cfg.MaxAgeDays,
	})
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemirror",
		Short: "Mirror a website to disk and rewrite it for offline browsing.",
		Long: `sitemirror crawls a site breadth-first, stores every page and static
asset under an output directory that mirrors the URL structure, and
rewrites the stored files so the copy can be browsed offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.Bool("dev", false, "use the development console logger")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write JSON logs to this rotated file")

	cmd.AddCommand(newMirrorCmd(), newRewriteCmd())
	return cmd
}

// loadConfig reads the config file named by --config and binds the global
// flags plus the command's own.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.Load(path, cmd.Flags(), config.GlobalFlags, bindings)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case mirror.IsMalformedInput(err):
		return exitMalformedInput
	default:
		return exitFailure
	}
}

// run executes the CLI with args and reports the exit status. Errors go to
// stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
	}
	if errors.Is(err, context.Canceled) {
		return exitOK
	}
	return exitCode(err)
}

// Execute is the main entry point. It stops in-flight work on SIGINT or
// SIGTERM and exits with the command's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
