package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"igrelay/internal/config"
	"igrelay/internal/registry"
	"igrelay/internal/storage"
	logx "igrelay/pkg/logx"
)

// openRegistry opens the configured store without starting the bot. Only the
// storage section is needed, so the config is parsed but not validated.
func openRegistry(ctx context.Context, cfgPath string) (*registry.Registry, storage.Store, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, nil, err
	}
	log := logx.NewConsole(cfg.Logging.Level)
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: config.DurationOr(cfg.Storage.BusyTimeout, time.Second),
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return registry.Open(ctx, st, log), st, nil
}

func registryCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect or edit the broadcast audience offline",
	}

	type runFunc func(ctx context.Context, out io.Writer, reg *registry.Registry, st storage.Store, args []string) error
	with := func(fn runFunc) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			reg, st, err := openRegistry(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(ctx, c.OutOrStdout(), reg, st, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of recipients",
			Args:  cobra.NoArgs,
			RunE: with(func(_ context.Context, out io.Writer, reg *registry.Registry, _ storage.Store, _ []string) error {
				fmt.Fprintf(out, "%s recipients (%s)\n", humanize.Comma(int64(reg.Count())), reg.Location())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every recipient id, one per line",
			Args:  cobra.NoArgs,
			RunE: with(func(_ context.Context, out io.Writer, reg *registry.Registry, _ storage.Store, _ []string) error {
				for _, id := range reg.All() {
					fmt.Fprintln(out, id)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <id>...",
			Short: "Add recipients",
			Args:  cobra.MinimumNArgs(1),
			RunE: with(func(ctx context.Context, out io.Writer, reg *registry.Registry, _ storage.Store, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				n := 0
				for _, id := range ids {
					if reg.Add(ctx, id) {
						n++
					}
				}
				fmt.Fprintf(out, "added %d, total %d\n", n, reg.Count())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <id>...",
			Short: "Remove recipients",
			Args:  cobra.MinimumNArgs(1),
			RunE: with(func(ctx context.Context, out io.Writer, reg *registry.Registry, _ storage.Store, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				n := 0
				for _, id := range ids {
					if reg.Remove(ctx, id) {
						n++
					}
				}
				fmt.Fprintf(out, "removed %d, total %d\n", n, reg.Count())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every recipient",
			Args:  cobra.NoArgs,
			RunE: with(func(ctx context.Context, out io.Writer, reg *registry.Registry, st storage.Store, _ []string) error {
				before := reg.Count()
				reg.Clear(ctx)
				host, _ := os.Hostname()
				_ = st.AppendAudit(ctx, storage.AuditEntry{
					At:            time.Now(),
					ActorUsername: "cli@" + host,
					Plugin:        "registry",
					Action:        "clear",
					OK:            before,
				})
				fmt.Fprintf(out, "cleared %d recipients\n", before)
				return nil
			}),
		},
	)
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid chat id %q", a)
		}
		out = append(out, id)
	}
	return out, nil
}
