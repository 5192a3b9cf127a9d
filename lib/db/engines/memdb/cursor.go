package memdb

import (
	"bytes"

	"github.com/ValentinKolb/dShard/lib/db"
)

// cursor iterates over a snapshot of candidate rows taken when Scroll was called.
// The criteria are evaluated row by row in Next, so stopping early skips the remaining rows.
type cursor struct {
	rows     []db.Row
	criteria db.Criteria
	pos      int
	current  *db.Row
	err      error
	closed   bool
}

func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	for c.pos < len(c.rows) {
		row := c.rows[c.pos]
		c.pos++
		ok, err := c.criteria.Matches(row)
		if err != nil {
			c.err = err
			c.current = nil
			return false
		}
		if ok {
			c.current = &row
			return true
		}
	}
	c.current = nil
	return false
}

func (c *cursor) Row() db.Row {
	if c.current == nil {
		return db.Row{}
	}
	return db.Row{Key: c.current.Key, Value: bytes.Clone(c.current.Value)}
}

// Err returns the first error of the criteria predicate.
func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.closed = true
	c.rows = nil
	c.current = nil
	return nil
}
