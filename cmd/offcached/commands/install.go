package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offcache"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run one registration attempt and exit",
	Long: `Install the configured generation and activate it.

The exit status reflects the install result. On failure every manifest entry
that could not be fetched is listed, and the previously active generation is
left untouched. Useful with a shared (redis) store to pre-warm the cache
before rolling out edges.`,
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.shutdown(context.Background()) }()

	if err := rt.ctrl.Register(ctx); err != nil {
		var ierr *offcache.InstallError
		if errors.As(err, &ierr) {
			for _, e := range ierr.Entries {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", e.URL, e.Err)
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "generation %s installed and active (%d entries)\n",
		cfg.Generation, len(cfg.Manifest))
	return nil
}
