package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dShard/cmd/config"
	"github.com/ValentinKolb/dShard/cmd/locate"
	"github.com/ValentinKolb/dShard/cmd/perf"
	"github.com/ValentinKolb/dShard/cmd/serve"
	"github.com/ValentinKolb/dShard/cmd/shard"
	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dshard",
		Short: "sharding middleware for transactional backends",
		Long: fmt.Sprintf(`dShard (v%s)

Sharding middleware written in Go. Partition keys are hashed to buckets,
buckets are allocated to shards, and shards can be blacklisted at runtime.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dShard",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dShard v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(shard.ShardCommands)
	RootCmd.AddCommand(locate.LocateCmd)
	RootCmd.AddCommand(config.ConfigCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
