package config

import (
	"fmt"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/spf13/cobra"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective node configuration as yaml",
	Long: `Print the configuration 'dshard serve' would use with the same flags, environment
variables and config file. The output can be saved and passed back with --config.`,
	PreRunE: util.BindCommandFlags,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := util.GetNodeConfig()
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	util.SetupNodeFlags(ConfigCmd)
}
