package sharding

import (
	"math"
)

// --------------------------------------------------------------------------
// Key distribution
// --------------------------------------------------------------------------

// Stats summarizes a series of values.
type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the population standard deviation, minimum, maximum and mean of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	minMaxRatio := 1.0
	if hi > 0 {
		minMaxRatio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

// DistributionStats rates how evenly keys are spread over the shards.
// Quality is 1 for a perfectly even spread and approaches 0 if a single shard receives all keys.
type DistributionStats struct {
	Stats
	Quality float64 `json:"quality"`
}

// NewDistributionStats combines the coefficient of variation and the min/max ratio of the shard sizes.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:   stats,
		Quality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// Distribution counts the keys per shard without consulting the blacklist.
func Distribution(alloc *Allocation, extractor BucketIDExtractor, keys []string) ([]int, DistributionStats, error) {
	counts := make([]int, alloc.NumShards())
	for _, key := range keys {
		shardID, err := alloc.ShardFor(extractor.BucketID(key))
		if err != nil {
			return nil, DistributionStats{}, err
		}
		counts[shardID]++
	}

	sizes := make([]float64, len(counts))
	for i, c := range counts {
		sizes[i] = float64(c)
	}
	return counts, NewDistributionStats(sizes), nil
}
