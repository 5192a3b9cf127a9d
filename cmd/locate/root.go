package locate

import (
	"fmt"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var LocateCmd = &cobra.Command{
	Use:   "locate [key...]",
	Short: "Print bucket and shard of partition keys",
	Long: `Print the bucket and the shard owning each key for the configured scheme and shard
count. Works offline, blacklist flags are not considered. With --sample N the command
instead hashes N generated keys and prints how evenly they spread over the shards.`,
	PreRunE: util.BindCommandFlags,
	RunE:    run,
}

func init() {
	util.SetupNodeFlags(LocateCmd)

	key := "sample"
	LocateCmd.Flags().Int(key, 0, util.WrapString("Number of generated keys (<prefix>-<n>) used to print the key distribution"))
	key = "prefix"
	LocateCmd.Flags().String(key, "customer", util.WrapString("Prefix of the generated keys"))
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := util.GetNodeConfig()
	if err != nil {
		return err
	}
	policy, err := sharding.PolicyByName(cfg.Scheme)
	if err != nil {
		return err
	}
	alloc, err := policy.Allocate(cfg.Shards)
	if err != nil {
		return err
	}
	extractor, err := sharding.ExtractorByName(cfg.Extractor, policy.NumBuckets)
	if err != nil {
		return err
	}
	naming := sharding.NewNamingProvider(cfg.Namespace)

	if n := viper.GetInt("sample"); n > 0 {
		keys := make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprintf("%s-%d", viper.GetString("prefix"), i)
		}
		counts, stats, err := sharding.Distribution(alloc, extractor, keys)
		if err != nil {
			return err
		}
		for shardID, c := range counts {
			fmt.Printf("%-32s %8d keys (%5.2f%%)\n", naming.ShardName(shardID), c, 100*float64(c)/float64(n))
		}
		fmt.Printf("\nmean %.1f, std deviation %.1f, min/max %.3f, quality %.3f\n",
			stats.Mean, stats.StdDeviation, stats.MinMaxRatio, stats.Quality)
		return nil
	}

	if len(args) == 0 {
		return cmd.Usage()
	}
	for _, key := range args {
		bucket := extractor.BucketID(key)
		shardID, err := alloc.ShardFor(bucket)
		if err != nil {
			return err
		}
		fmt.Printf("%s: bucket %d, shard %d (%s)\n", key, bucket, shardID, naming.ShardName(shardID))
	}
	return nil
}
