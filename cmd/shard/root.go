package shard

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/rpc/client"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/spf13/cobra"
)

var (
	adminClient *client.AdminClient

	ShardCommands = &cobra.Command{
		Use:   "shard",
		Short: "Manage the shards of a running dShard node",
		Long: `Blacklist and unblacklist shards and inspect their state through the admin API
of a running node. The endpoint can be set with --endpoint or DSHARD_ENDPOINT.`,
		PersistentPreRunE: setupClient,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if adminClient != nil {
				_ = adminClient.Close()
			}
		},
	}

	blacklistCmd = &cobra.Command{
		Use:   "blacklist <shard-id>",
		Short: "Take a shard out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTask(adminClient.Blacklist, args[0])
		},
	}

	unblacklistCmd = &cobra.Command{
		Use:   "unblacklist <shard-id>",
		Short: "Put a shard back into rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTask(adminClient.Unblacklist, args[0])
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print bucket ranges, blacklist flags and table sizes of all shards",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := adminClient.Shards()
			if err != nil {
				return err
			}
			fmt.Printf("namespace %s, policy %s, %d buckets\n\n", resp.Namespace, resp.Policy, resp.NumBuckets)
			fmt.Printf("%-6s %-32s %-12s %-12s %s\n", "SHARD", "NAME", "BUCKETS", "BLACKLISTED", "ROWS")
			for _, s := range resp.Shards {
				fmt.Printf("%-6d %-32s %-12s %-12t %s\n", s.ID, s.Name,
					fmt.Sprintf("%d-%d", s.FirstBucket, s.LastBucket), s.Blacklisted, formatRows(s.Rows))
			}
			return nil
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Print the health of all shards, exits with an error if a shard is unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := adminClient.Health()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(resp.Shards))
			for name := range resp.Shards {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				h := resp.Shards[name]
				fmt.Printf("%-32s healthy=%t %s\n", name, h.Healthy, h.Message)
			}
			if !resp.Healthy {
				return fmt.Errorf("node is unhealthy")
			}
			return nil
		},
	}
)

func init() {
	util.SetupClientFlags(ShardCommands)
	ShardCommands.AddCommand(blacklistCmd, unblacklistCmd, statusCmd, healthCmd)
}

func setupClient(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd, args); err != nil {
		return err
	}
	c, err := client.NewAdminClient(util.GetClientConfig())
	if err != nil {
		return err
	}
	adminClient = c
	return nil
}

func runTask(task func(int) (common.TaskResponse, error), arg string) error {
	shardID, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid shard id %q", arg)
	}
	resp, err := task(shardID)
	if err != nil {
		return err
	}
	fmt.Printf("%s shard %d: blacklisted=%t\n", resp.Task, resp.ShardID, resp.Blacklisted)
	return nil
}

func formatRows(rows map[string]int) string {
	if len(rows) == 0 {
		return "-"
	}
	tables := make([]string, 0, len(rows))
	for table := range rows {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	out := ""
	for i, table := range tables {
		if i > 0 {
			out += ","
		}
		out += table + "=" + strconv.Itoa(rows[table])
	}
	return out
}
