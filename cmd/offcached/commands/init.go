package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offcache/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample offcached configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/offcache/config.yaml.
Use --config to specify a custom path.

Examples:
  offcached init
  offcached init --config /etc/offcache/config.yaml
  offcached init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, err := config.InitConfig(cfgFile, initForce)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set generation, origin and manifest for your deployment")
	fmt.Fprintln(out, "  2. Start the edge with: offcached serve")
	return nil
}
