package memdb

import (
	"sync"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/google/btree"
)

const btreeDegree = 32

// rowItem is the btree item of a table, ordered by key
type rowItem struct {
	key   string
	value []byte
}

func (r *rowItem) Less(than btree.Item) bool {
	return r.key < than.(*rowItem).key
}

// table holds the committed rows of one table.
// Values are never modified in place: writes replace the item.
type table struct {
	mu   sync.RWMutex
	rows *btree.BTree
}

func newTable() *table {
	return &table{rows: btree.New(btreeDegree)}
}

func (t *table) get(key string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item := t.rows.Get(&rowItem{key: key})
	if item == nil {
		return nil, false
	}
	return item.(*rowItem).value, true
}

// snapshot returns all committed rows in ascending key order
func (t *table) snapshot() []db.Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]db.Row, 0, t.rows.Len())
	t.rows.Ascend(func(i btree.Item) bool {
		item := i.(*rowItem)
		rows = append(rows, db.Row{Key: item.key, Value: item.value})
		return true
	})
	return rows
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}

// apply writes the changes of one committed transaction. The caller holds the commit lock.
func (t *table) apply(changes map[string]*pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, p := range changes {
		if p.deleted {
			t.rows.Delete(&rowItem{key: key})
			continue
		}
		t.rows.ReplaceOrInsert(&rowItem{key: key, value: p.value})
	}
}
