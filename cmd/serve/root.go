package serve

import (
	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/bundle"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/ValentinKolb/dShard/rpc/server"
	"github.com/spf13/cobra"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a dShard node",
	Long: `Start a dShard node with the specified configuration. The node creates one in-memory
backend per shard and serves the admin API (blacklisting tasks, health checks, shard
layout and metrics). The configuration can be set via a yaml file, command line flags
or environment variables. The format of the environment variables is DSHARD_<flag>
(e.g. DSHARD_SHARDS=8)`,
	PreRunE: util.BindCommandFlags,
	RunE:    run,
}

func init() {
	util.SetupNodeFlags(ServeCmd)
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := util.GetNodeConfig()
	if err != nil {
		return err
	}
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return err
	}

	b, err := bundle.New(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	return server.NewAdminServer(cfg, b).Serve()
}
