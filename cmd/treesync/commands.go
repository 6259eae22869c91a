package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/treesync"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/watch"
)

// withClient runs fn with a reconciled client and closes everything afterwards.
func (a *app) withClient(
	cmd *cobra.Command,
	fn func(ctx context.Context, client *treesync.Client, cfg *config.Config, logger *slog.Logger) error,
	opts ...treesync.Option,
) error {
	cfg, logger, logCloser, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	client, err := newClient(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close client", "error", err)
		}
	}()

	if _, err := client.Reconcile(ctx); err != nil {
		return err
	}
	return fn(ctx, client, cfg, logger)
}

func (a *app) newSyncCmd() *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes to the remote once",
		Long: `Sync resumes an interrupted sync if there is one, then hashes the tree and
transfers every file that changed since the last successful sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []treesync.Option
			if progress {
				out := cmd.ErrOrStderr()
				opts = append(opts, treesync.WithProgress(func(done, total int) {
					fmt.Fprintf(out, "\r%d/%d", done, total)
					if done == total {
						fmt.Fprintln(out)
					}
				}))
			}
			return a.withClient(cmd, func(ctx context.Context, client *treesync.Client, _ *config.Config, _ *slog.Logger) error {
				res, err := client.Sync(ctx)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			}, opts...)
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "print transfer progress to stderr")
	return cmd
}

func (a *app) newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what the next sync would transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *treesync.Client, _ *config.Config, _ *slog.Logger) error {
				plan, err := client.Plan(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if plan.Empty() {
					fmt.Fprintln(out, "Nothing to sync.")
					return nil
				}
				for _, op := range plan.Operations {
					fmt.Fprintln(out, op.String())
				}
				fmt.Fprintf(out, "%d to upload, %d to delete\n", plan.Uploads, plan.Deletes)
				return nil
			})
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(_ context.Context, client *treesync.Client, cfg *config.Config, _ *slog.Logger) error {
				printStatus(cmd.OutOrStdout(), cfg, client.Status())
				return nil
			})
		},
	}
}

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the remote is reachable with the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *treesync.Client, cfg *config.Config, _ *slog.Logger) error {
				if err := client.CheckConnection(ctx); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Connected to %s.\n", cfg.Provider.Type)
				if st := client.Status(); st.Pending {
					fmt.Fprintf(out, "%d operations of an interrupted sync are pending.\n", st.Dirty())
				}
				return nil
			})
		},
	}
}

func (a *app) newWatchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync whenever the tree changes",
		Long: `Watch runs a sync on start and then again every time the tree has been quiet
for the debounce interval after a change. A change that arrives while a sync is
running does not queue another one; the following change picks it up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *treesync.Client, cfg *config.Config, logger *slog.Logger) error {
				if debounce <= 0 {
					debounce = cfg.Watch.Debounce
				}
				out := cmd.OutOrStdout()
				trigger := func(ctx context.Context) {
					res, err := client.Sync(ctx)
					switch {
					case tserrors.IsSyncInProgress(err):
						logger.Info("change ignored, a sync is already running")
					case errors.Is(err, context.Canceled):
					case err != nil:
						logger.Error("sync failed", "error", err)
					default:
						printResult(out, res)
					}
				}

				trigger(ctx)
				root, err := filepath.Abs(cfg.Tree.Root)
				if err != nil {
					return err
				}
				w := watch.New(root,
					watch.WithPatterns(cfg.Tree.Include, cfg.Tree.Exclude),
					watch.WithDebounce(debounce),
					watch.WithLogger(logger),
				)
				return w.Run(ctx, trigger)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a sync (default from config)")
	return cmd
}

func (a *app) newProvidersCmd() *cobra.Command {
	var (
		initType string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the available providers, or write a starter config with --init",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if initType != "" {
				return a.writeTemplate(out, initType, force)
			}

			cfg, err := a.load()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			defer reg.Close()

			configured := map[string]bool{}
			for _, info := range reg.List() {
				configured[info.ID] = true
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS")
			for _, info := range knownProviders {
				status := "not configured"
				switch {
				case info.ID == cfg.Provider.Type && configured[info.ID]:
					status = "selected"
				case configured[info.ID]:
					status = "configured"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.ID, info.Name, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&initType, "init", "", "write a starter config for the given provider type")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func (a *app) writeTemplate(out io.Writer, providerType string, force bool) error {
	known := false
	for _, info := range knownProviders {
		known = known || info.ID == providerType
	}
	if !known {
		return fmt.Errorf("%w: unknown provider %q", tserrors.ErrInvalidInput, providerType)
	}

	path := a.cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "treesync.yaml")
	}
	if err := config.Write(path, config.Template(providerType), force); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}

func printResult(out io.Writer, res *treesync.Result) {
	if res.Operations == 0 && !res.Resumed {
		fmt.Fprintln(out, "Already up to date.")
		return
	}
	msg := fmt.Sprintf("Synced: %d uploaded, %d deleted in %s", res.Uploaded, res.Deleted, res.Duration.Round(time.Millisecond))
	if res.Resumed {
		msg += " (resumed)"
	}
	fmt.Fprintln(out, msg)
}

func printStatus(out io.Writer, cfg *config.Config, st treesync.Status) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Tree:\t%s (%s)\n", cfg.TreeName(), cfg.Tree.Root)
	fmt.Fprintf(tw, "Provider:\t%s\n", cfg.Provider.Type)
	fmt.Fprintf(tw, "Phase:\t%s\n", st.Phase)
	fmt.Fprintf(tw, "Files:\t%d\n", st.BaselineFiles)
	if st.LastSuccessfulSyncAt != nil {
		fmt.Fprintf(tw, "Last sync:\t%s\n", st.LastSuccessfulSyncAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(tw, "Last sync:\tnever\n")
	}
	if st.Pending {
		fmt.Fprintf(tw, "Pending:\t%d of %d operations left\n", st.Dirty(), st.Total)
	}
	if st.LastError != "" {
		fmt.Fprintf(tw, "Last error:\t%s\n", st.LastError)
	}
}
