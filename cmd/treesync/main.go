// Command treesync pushes a local directory tree to a remote storage location.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/logging"
)

// Set by the release build.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

// app carries the global flags shared by every command.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "treesync",
		Short: "Push a local directory tree to remote storage",
		Long: `treesync keeps a remote copy of a local directory tree up to date.

Each sync hashes the tree, compares it with the state last pushed and only
transfers what changed. An interrupted sync is resumed on the next run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/treesync/treesync.yaml or ./treesync.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		a.newSyncCmd(),
		a.newPlanCmd(),
		a.newStatusCmd(),
		a.newCheckCmd(),
		a.newWatchCmd(),
		a.newProvidersCmd(),
	)
	return root
}

// load reads the configuration and applies the logging flags.
func (a *app) load() (*config.Config, error) {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	return cfg, nil
}

// setup loads and validates the configuration and builds the logger.
// The returned closer flushes the log file, if any.
func (a *app) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debug("configuration loaded",
		"tree", cfg.TreeName(),
		"root", cfg.Tree.Root,
		"provider", cfg.Provider.Type,
		"state", cfg.StatePath(),
	)
	return cfg, logger, closer, nil
}
