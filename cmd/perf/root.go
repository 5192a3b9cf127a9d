package perf

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/bundle"
	"github.com/ValentinKolb/dShard/lib/dao"
	"github.com/ValentinKolb/dShard/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "In-process performance test of the DAO layer",
		Long: `Create a bundle with the node configuration and benchmark lookup DAO operations
(save, get, update, locked, scatter) against it. Latencies are recorded with timers and
printed as percentiles.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads = 10
	perfKeySpread  = 1000
	perfValueSize  = 128
	perfSkip       = make([]string, 0)
)

type perfEntity struct {
	ID      string
	Counter int64
	Payload []byte
}

var perfSchema = dao.Schema[perfEntity]{
	Table: "perf",
	Key:   func(e *perfEntity) string { return e.ID },
}

func init() {
	util.SetupNodeFlags(PerfCmd)

	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. save,scatter)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per benchmark"))
	key = "keys"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the read and update tests"))
	key = "value-size"
	PerfCmd.Flags().Int(key, 128, util.WrapString("Payload size of the entities in bytes"))
}

func processPerfConfig(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd, args); err != nil {
		return err
	}
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfValueSize = viper.GetInt("value-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func shouldSkip(test string) bool {
	for _, s := range perfSkip {
		if strings.TrimSpace(s) == test {
			return true
		}
	}
	return false
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := util.GetNodeConfig()
	if err != nil {
		return err
	}
	// the benchmark is noisy enough without info logs
	cfg.LogLevel = "warn"
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return err
	}

	b, err := bundle.New(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	entities, err := bundle.NewLookupDao(b, perfSchema)
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for the dShard DAO layer")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d, Keys: %d, Value size: %d bytes\n\n", perfNumThreads, perfKeySpread, perfValueSize)

	payload := make([]byte, perfValueSize)
	keyOf := func(i int) string { return fmt.Sprintf("perf-%d", i%perfKeySpread) }
	for i := range perfKeySpread {
		if _, err := entities.Save(&perfEntity{ID: keyOf(i), Payload: payload}); err != nil {
			return fmt.Errorf("preparing keys: %w", err)
		}
	}

	var saved atomic.Int64
	benchmarks := []struct {
		name string
		op   func(i int) error
	}{
		{"save", func(int) error {
			_, err := entities.Save(&perfEntity{ID: fmt.Sprintf("perf-new-%d", saved.Add(1)), Payload: payload})
			return err
		}},
		{"get", func(i int) error {
			_, err := entities.Get(keyOf(i))
			return err
		}},
		{"update", func(i int) error {
			_, err := entities.Update(keyOf(i), func(e *perfEntity) *perfEntity {
				e.Counter++
				return e
			})
			return err
		}},
		{"locked", func(i int) error {
			_, err := entities.LockAndGetExecutor(keyOf(i)).
				Mutate(func(e *perfEntity) { e.Counter++ }).
				Execute()
			return err
		}},
		{"scatter", func(int) error {
			_, err := entities.Count(dao.Where(func(e *perfEntity) bool { return e.Counter > 0 }))
			return err
		}},
	}

	fmt.Printf("%-10s\t%-28s\t%-16s\t%-12s\t%-12s\t%s\n", "TEST", "TIME", "THROUGHPUT", "P50", "P99", "ERRORS")
	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			continue
		}
		timer := gometrics.NewTimer()
		errCount := gometrics.NewCounter()
		var next atomic.Int64

		result := testing.Benchmark(func(tb *testing.B) {
			tb.SetParallelism(perfNumThreads)
			tb.ResetTimer()
			tb.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					i := int(next.Add(1))
					start := time.Now()
					if err := bm.op(i); err != nil {
						errCount.Inc(1)
					}
					timer.UpdateSince(start)
				}
			})
		})
		printResult(bm.name, result, timer.Snapshot(), errCount.Count())
	}
	return nil
}

func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer, errors int64) {
	nsPerOp := float64(result.T.Nanoseconds()) / float64(result.N)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Format the time per operation with appropriate units
	var timePerOpStr string
	if nsPerOp < 1000 {
		timePerOpStr = fmt.Sprintf("%.2f ns/op", nsPerOp)
	} else if nsPerOp < 1000000 {
		timePerOpStr = fmt.Sprintf("%.2f ns/op (%.2f µs/op)", nsPerOp, nsPerOp/1000)
	} else {
		timePerOpStr = fmt.Sprintf("%.2f ns/op (%.2f ms/op)", nsPerOp, nsPerOp/1000000)
	}

	p := timer.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-10s\t%-28s\t%-16s\t%-12s\t%-12s\t%d\n", test, timePerOpStr,
		fmt.Sprintf("%.0f ops/sec", opsPerSec),
		time.Duration(p[0]).String(), time.Duration(p[1]).String(), errors)
}
