package sharding

// Calculator resolves partition keys to shard ids.
type Calculator struct {
	manager   *Manager
	extractor BucketIDExtractor
}

func NewCalculator(manager *Manager, extractor BucketIDExtractor) *Calculator {
	return &Calculator{manager: manager, extractor: extractor}
}

// ShardID returns the shard owning key. Errors are those of Manager.ShardForBucket.
func (c *Calculator) ShardID(key string) (int, error) {
	return c.manager.ShardForBucket(c.extractor.BucketID(key))
}

// BucketID returns the bucket of key without checking the blacklist.
func (c *Calculator) BucketID(key string) int {
	return c.extractor.BucketID(key)
}

func (c *Calculator) NumShards() int {
	return c.manager.NumShards()
}

func (c *Calculator) Manager() *Manager {
	return c.manager
}
