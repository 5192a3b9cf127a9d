package sharding

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Bucket ranges
// --------------------------------------------------------------------------

// BucketRange is an inclusive range of buckets owned by one shard.
type BucketRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
	Shard int `json:"shard" yaml:"shard"`
}

// Width returns the number of buckets in the range.
func (r BucketRange) Width() int {
	return r.End - r.Start + 1
}

func (r BucketRange) String() string {
	return fmt.Sprintf("[%d,%d]->%d", r.Start, r.End, r.Shard)
}

// --------------------------------------------------------------------------
// Allocation policy
// --------------------------------------------------------------------------

// AllocationPolicy describes a bucket space and the algorithm partitioning it between shards.
type AllocationPolicy struct {
	Name       string
	NumBuckets int

	validate  func(numBuckets, numShards int) error
	partition func(numBuckets, numShards int) []BucketRange
	equalSize bool
}

var (
	// Balanced uses 1024 buckets and requires a power of two > 1 shards, every shard owns the same number of buckets.
	Balanced = AllocationPolicy{
		Name:       "balanced",
		NumBuckets: 1024,
		validate:   validatePowerOfTwo,
		partition:  partitionEqual,
		equalSize:  true,
	}

	// Legacy uses 1000 buckets split in intervals of 999/numShards. The last shard owns
	// everything from its start up to bucket 999, so its range may be wider than the others.
	Legacy = AllocationPolicy{
		Name:       "legacy",
		NumBuckets: 1000,
		validate:   validateLegacy,
		partition:  partitionRemainderToLast,
	}
)

// PolicyByName returns the policy with the given name (balanced or legacy).
func PolicyByName(name string) (AllocationPolicy, error) {
	switch strings.ToLower(name) {
	case Balanced.Name:
		return Balanced, nil
	case Legacy.Name:
		return Legacy, nil
	default:
		return AllocationPolicy{}, newError(CodeConfiguration, -1, nil, "unknown allocation policy %q (expected balanced or legacy)", name)
	}
}

func validatePowerOfTwo(numBuckets, numShards int) error {
	if numShards <= 1 || numShards > numBuckets || numShards&(numShards-1) != 0 {
		return fmt.Errorf("balanced allocation requires a power of two in (1,%d] shards, got %d", numBuckets, numShards)
	}
	return nil
}

func validateLegacy(numBuckets, numShards int) error {
	if numShards < 1 || numShards > numBuckets-1 {
		return fmt.Errorf("legacy allocation requires 1..%d shards, got %d", numBuckets-1, numShards)
	}
	return nil
}

func partitionEqual(numBuckets, numShards int) []BucketRange {
	width := numBuckets / numShards
	ranges := make([]BucketRange, numShards)
	for shard := range ranges {
		ranges[shard] = BucketRange{Start: shard * width, End: (shard+1)*width - 1, Shard: shard}
	}
	return ranges
}

func partitionRemainderToLast(numBuckets, numShards int) []BucketRange {
	interval := (numBuckets - 1) / numShards
	ranges := make([]BucketRange, numShards)
	for shard := range ranges {
		start := shard * interval
		end := start + interval - 1
		if shard == numShards-1 {
			end = numBuckets - 1
		}
		ranges[shard] = BucketRange{Start: start, End: end, Shard: shard}
	}
	return ranges
}

// --------------------------------------------------------------------------
// Allocation (immutable bucket -> shard table)
// --------------------------------------------------------------------------

// Allocation is the immutable bucket to shard table built from a policy.
// It is safe for concurrent reads.
type Allocation struct {
	policy AllocationPolicy
	ranges []BucketRange
	table  []int
}

// Allocate partitions the bucket space of the policy between numShards shards and
// verifies that every bucket is owned by exactly one shard.
func (p AllocationPolicy) Allocate(numShards int) (*Allocation, error) {
	if p.partition == nil || p.NumBuckets <= 0 {
		return nil, newError(CodeConfiguration, -1, nil, "allocation policy %q is not initialized", p.Name)
	}
	if err := p.validate(p.NumBuckets, numShards); err != nil {
		return nil, newError(CodeConfiguration, -1, err, "invalid shard count")
	}

	ranges := p.partition(p.NumBuckets, numShards)
	if len(ranges) != numShards {
		return nil, newError(CodeConfiguration, -1, nil, "allocation produced %d ranges for %d shards", len(ranges), numShards)
	}

	table := make([]int, p.NumBuckets)
	for i := range table {
		table[i] = -1
	}
	for _, r := range ranges {
		if r.Start < 0 || r.End >= p.NumBuckets || r.Start > r.End {
			return nil, newError(CodeConfiguration, r.Shard, nil, "range %s outside of bucket space", r)
		}
		if p.equalSize && r.Width() != p.NumBuckets/numShards {
			return nil, newError(CodeConfiguration, r.Shard, nil, "range %s has width %d, expected %d", r, r.Width(), p.NumBuckets/numShards)
		}
		for b := r.Start; b <= r.End; b++ {
			if table[b] != -1 {
				return nil, newError(CodeConfiguration, r.Shard, nil, "bucket %d assigned to shard %d and %d", b, table[b], r.Shard)
			}
			table[b] = r.Shard
		}
	}
	for b, shard := range table {
		if shard == -1 {
			return nil, newError(CodeConfiguration, -1, nil, "bucket %d is not assigned to any shard", b)
		}
	}

	return &Allocation{policy: p, ranges: ranges, table: table}, nil
}

// ShardFor returns the owner of the bucket.
func (a *Allocation) ShardFor(bucket int) (int, error) {
	if bucket < 0 || bucket >= len(a.table) {
		return -1, newError(CodeInvalidBucket, -1, nil, "bucket %d outside of [0,%d)", bucket, len(a.table))
	}
	return a.table[bucket], nil
}

// Ranges returns a copy of the bucket ranges in shard order.
func (a *Allocation) Ranges() []BucketRange {
	out := make([]BucketRange, len(a.ranges))
	copy(out, a.ranges)
	return out
}

// NumShards returns the number of shards.
func (a *Allocation) NumShards() int {
	return len(a.ranges)
}

// NumBuckets returns the size of the bucket space.
func (a *Allocation) NumBuckets() int {
	return len(a.table)
}

// Policy returns the policy the allocation was built from.
func (a *Allocation) Policy() AllocationPolicy {
	return a.policy
}
