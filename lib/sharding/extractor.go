package sharding

import (
	"github.com/spaolacci/murmur3"
	"github.com/valyala/fastrand"
)

// BucketIDExtractor maps a partition key to a bucket in [0, NumBuckets).
type BucketIDExtractor interface {
	BucketID(key string) int
}

// ExtractorFunc adapts a function to a BucketIDExtractor.
type ExtractorFunc func(key string) int

func (f ExtractorFunc) BucketID(key string) int {
	return f(key)
}

// ConsistentHashExtractor hashes keys with murmur3 x64/128. The same key always maps to the same bucket.
type ConsistentHashExtractor struct {
	numBuckets int
}

func NewConsistentHashExtractor(numBuckets int) *ConsistentHashExtractor {
	return &ConsistentHashExtractor{numBuckets: numBuckets}
}

// BucketID takes the low 32 bits of the first hash word as a signed int, folds it to
// its absolute value and reduces it modulo the bucket count.
func (e *ConsistentHashExtractor) BucketID(key string) int {
	h1, _ := murmur3.Sum128([]byte(key))
	hash := int64(int32(uint32(h1)))
	if hash < 0 {
		hash = -hash
	}
	return int(hash % int64(e.numBuckets))
}

// RandomExtractor ignores the key and returns a uniformly distributed bucket.
type RandomExtractor struct {
	numBuckets int
}

func NewRandomExtractor(numBuckets int) *RandomExtractor {
	return &RandomExtractor{numBuckets: numBuckets}
}

func (e *RandomExtractor) BucketID(string) int {
	return int(fastrand.Uint32n(uint32(e.numBuckets)))
}

// ExtractorByName builds the extractor for a config value (consistent or random).
func ExtractorByName(name string, numBuckets int) (BucketIDExtractor, error) {
	switch name {
	case "", "consistent":
		return NewConsistentHashExtractor(numBuckets), nil
	case "random":
		return NewRandomExtractor(numBuckets), nil
	default:
		return nil, newError(CodeConfiguration, -1, nil, "unknown extractor %q (expected consistent or random)", name)
	}
}
