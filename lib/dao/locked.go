package dao

import (
	"slices"

	"github.com/ValentinKolb/dShard/lib/db"
)

// Mode selects how a LockedContext resolves its root entity.
type Mode uint8

const (
	ModeRead   Mode = iota // lock an existing root, absence is an error
	ModeInsert             // insert a new root first
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "Read"
	case ModeInsert:
		return "Insert"
	default:
		return "Unknown"
	}
}

// operation is one queued step of a plan, run on the root inside the plan's transaction
type operation[T any] func(s db.Session, root *T) error

// LockedContext is an immutable plan: a root resolution step and an ordered list of operations
// that Execute runs in one transaction on the shard owning the root.
// Every builder method returns a new plan and leaves the receiver untouched.
//
// While the plan executes, the no-wait lock on the root is held. A second plan on the same
// root fails right away with ErrLockContention, nothing is retried.
type LockedContext[T any] struct {
	mode    Mode
	shardID int
	backend db.Backend
	err     error
	resolve func(db.Session) (*T, error)
	persist func(db.Session, *T) error
	ops     []operation[T]
}

// Mode returns how the root is resolved.
func (c *LockedContext[T]) Mode() Mode {
	return c.mode
}

// ShardID returns the shard the plan runs on, -1 if routing failed.
func (c *LockedContext[T]) ShardID() int {
	return c.shardID
}

// Len returns the number of queued operations.
func (c *LockedContext[T]) Len() int {
	return len(c.ops)
}

func (c *LockedContext[T]) with(op operation[T]) *LockedContext[T] {
	next := *c
	next.ops = append(slices.Clip(c.ops), op)
	return &next
}

// Mutate queues a change of the root. The root is written back after all operations ran.
func (c *LockedContext[T]) Mutate(mutator func(root *T)) *LockedContext[T] {
	return c.with(func(_ db.Session, root *T) error {
		mutator(root)
		return nil
	})
}

// Apply queues an arbitrary step. An error aborts the plan.
func (c *LockedContext[T]) Apply(handler func(root *T) error) *LockedContext[T] {
	return c.with(func(_ db.Session, root *T) error {
		return handler(root)
	})
}

// Filter aborts the plan with ErrPredicateFailed if predicate rejects the root.
func (c *LockedContext[T]) Filter(predicate func(root *T) bool) *LockedContext[T] {
	return c.FilterWithError(predicate, ErrPredicateFailed)
}

// FilterWithError aborts the plan with failure if predicate rejects the root.
func (c *LockedContext[T]) FilterWithError(predicate func(root *T) bool, failure error) *LockedContext[T] {
	return c.with(func(_ db.Session, root *T) error {
		if !predicate(root) {
			return failure
		}
		return nil
	})
}

// Execute runs the plan: it opens one transaction on the root's shard, resolves the root,
// runs every operation in order and writes the root back. Any error rolls back all of it.
func (c *LockedContext[T]) Execute() (*T, error) {
	if c.err != nil {
		return nil, c.err
	}
	return Execute(NewTransactionHandler(c.backend, false), func(s db.Session, ops []operation[T]) (*T, error) {
		root, err := c.resolve(s)
		if err != nil {
			return nil, err
		}
		for i, op := range ops {
			if err := op(s, root); err != nil {
				log.Debugf("plan on shard %d aborted at operation %d/%d: %v", c.shardID, i+1, len(ops), err)
				return nil, err
			}
		}
		if err := c.persist(s, root); err != nil {
			return nil, err
		}
		return root, nil
	}, c.ops, identity[*T], true)
}

// --------------------------------------------------------------------------
// Child operations
// --------------------------------------------------------------------------

// SaveChild queues the insert of the child generated from the root.
func SaveChild[P, C any](c *LockedContext[P], children *RelationalDao[C], generate func(root *P) (*C, error)) *LockedContext[P] {
	return c.with(func(s db.Session, root *P) error {
		child, err := generate(root)
		if err != nil {
			return err
		}
		_, err = children.saveIn(s, child)
		return err
	})
}

// SaveChildren queues the insert of all children generated from the root.
func SaveChildren[P, C any](c *LockedContext[P], children *RelationalDao[C], generate func(root *P) ([]*C, error)) *LockedContext[P] {
	return c.with(func(s db.Session, root *P) error {
		generated, err := generate(root)
		if err != nil {
			return err
		}
		for _, child := range generated {
			if _, err := children.saveIn(s, child); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveChildWith queues the insert of child and passes the stored child to handler.
func SaveChildWith[P, C any](c *LockedContext[P], children *RelationalDao[C], child *C, handler func(*C) error) *LockedContext[P] {
	return c.with(func(s db.Session, _ *P) error {
		saved, err := children.saveIn(s, child)
		if err != nil {
			return err
		}
		return handler(saved)
	})
}

// UpdateChild queues the update of the child with the given id. A missing child or a nil
// updater result leaves the child unchanged.
func UpdateChild[P, C any](c *LockedContext[P], children *RelationalDao[C], id string, updater func(*C) *C) *LockedContext[P] {
	return c.with(func(s db.Session, _ *P) error {
		_, err := children.updateIn(s, id, updater)
		return err
	})
}

// UpdateChildren queues a cursor based update of the matching children. After each updated
// child updateNext decides whether to continue.
func UpdateChildren[P, C any](c *LockedContext[P], children *RelationalDao[C], criteria Criteria[C], updater func(*C) *C, updateNext func() bool) *LockedContext[P] {
	return c.with(func(s db.Session, _ *P) error {
		_, err := children.scrollUpdateIn(s, criteria, updater, updateNext)
		return err
	})
}

// CreateOrUpdateChild queues an update of the first matching child, or the insert of a
// generated child if none matches.
func CreateOrUpdateChild[P, C any](c *LockedContext[P], children *RelationalDao[C], criteria Criteria[C], updater func(*C) *C, generator func() *C) *LockedContext[P] {
	return c.with(func(s db.Session, _ *P) error {
		_, err := children.createOrUpdateIn(s, criteria, updater, generator)
		return err
	})
}

// UpdateChildrenUsingQuery queues a named update on the root's shard.
func UpdateChildrenUsingQuery[P, C any](c *LockedContext[P], children *RelationalDao[C], params db.UpdateParams) *LockedContext[P] {
	return c.with(func(s db.Session, _ *P) error {
		_, err := children.updateUsingQueryIn(s, params)
		return err
	})
}
