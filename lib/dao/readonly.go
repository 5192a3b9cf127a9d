package dao

import (
	"slices"

	"github.com/ValentinKolb/dShard/lib/db"
)

// ReadOnlyContext reads a root entity and attaches related children in one read-only
// transaction on the root's shard. Like LockedContext it is an immutable plan.
type ReadOnlyContext[T any] struct {
	shardID int
	backend db.Backend
	err     error
	resolve func(db.Session) (*T, error)
	loaders []operation[T]
}

// ShardID returns the shard the plan runs on, -1 if routing failed.
func (c *ReadOnlyContext[T]) ShardID() int {
	return c.shardID
}

func (c *ReadOnlyContext[T]) with(op operation[T]) *ReadOnlyContext[T] {
	next := *c
	next.loaders = append(slices.Clip(c.loaders), op)
	return &next
}

// Apply queues a step that runs on the loaded root.
func (c *ReadOnlyContext[T]) Apply(handler func(root *T) error) *ReadOnlyContext[T] {
	return c.with(func(_ db.Session, root *T) error {
		return handler(root)
	})
}

// Execute reads the root and runs the queued steps. It returns nil without running
// any step if the root does not exist.
func (c *ReadOnlyContext[T]) Execute() (*T, error) {
	if c.err != nil {
		return nil, c.err
	}
	return Execute(NewTransactionHandler(c.backend, true), func(s db.Session, loaders []operation[T]) (*T, error) {
		root, err := c.resolve(s)
		if err != nil || root == nil {
			return nil, err
		}
		for _, load := range loaders {
			if err := load(s, root); err != nil {
				return nil, err
			}
		}
		return root, nil
	}, c.loaders, identity[*T], true)
}

// ReadChildren queues a select of children (criteria derived from the root) and hands the
// page to attach.
func ReadChildren[P, C any](c *ReadOnlyContext[P], children *RelationalDao[C], criteria func(root *P) Criteria[C], offset, limit int, attach func(root *P, children []*C)) *ReadOnlyContext[P] {
	return c.with(func(s db.Session, root *P) error {
		page, err := children.table.list(s, criteria(root), offset, limit)
		if err != nil {
			return err
		}
		attach(root, page)
		return nil
	})
}
