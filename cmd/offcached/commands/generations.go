package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var generationsCmd = &cobra.Command{
	Use:     "generations",
	Aliases: []string{"gens"},
	Short:   "List cache generations in the configured store",
	RunE:    runGenerations,
}

func runGenerations(cmd *cobra.Command, _ []string) error {
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

	names, err := rt.store.Keys(ctx)
	if err != nil {
		return err
	}
	active, err := rt.store.Active(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GENERATION\tENTRIES\tSTATE")
	for _, name := range names {
		cache, err := rt.store.Open(ctx, name)
		if err != nil {
			return err
		}
		keys, err := cache.Keys(ctx)
		if err != nil {
			return err
		}
		state := ""
		switch {
		case name == active:
			state = "active"
		case name == cfg.Generation:
			state = "configured"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(keys), state)
	}
	return w.Flush()
}
