package memdb

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/dShard/lib/db"
)

// pending is a buffered write of a transaction
type pending struct {
	value    []byte
	deleted  bool
	inserted bool
}

// session implements db.Session. Reads see committed rows overlaid with the
// session's own uncommitted writes.
type session struct {
	db     *MemDB
	id     uint64
	owner  []byte
	closed bool

	active   bool
	readOnly bool
	writes   map[string]map[string]*pending // table -> key -> write
	locks    []string
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *session) checkOpen() error {
	if s.closed || s.db.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

func (s *session) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.active {
		return db.ErrNoTransaction
	}
	if s.readOnly {
		return db.ErrReadOnly
	}
	return nil
}

func (s *session) lockKey(table, key string) string {
	return "lock:" + s.db.name + ":" + table + "/" + key
}

// lock takes the no-wait row lock for the rest of the transaction
func (s *session) lock(table, key string) error {
	lk := s.lockKey(table, key)
	if slices.Contains(s.locks, lk) {
		return nil
	}
	ok, err := s.db.locks.AcquireLock(lk, s.owner)
	if err != nil {
		return fmt.Errorf("locking %s/%s: %w", table, key, err)
	}
	if !ok {
		s.db.metrics.lockConflicts.Inc()
		return fmt.Errorf("%s/%s: %w", table, key, db.ErrLockContention)
	}
	s.locks = append(s.locks, lk)
	return nil
}

func (s *session) releaseLocks() {
	for _, lk := range s.locks {
		if _, err := s.db.locks.ReleaseLock(lk, s.owner); err != nil {
			log.Errorf("session %d: releasing lock %s failed: %v", s.id, lk, err)
		}
	}
	s.locks = nil
}

func (s *session) endTx() {
	s.writes = nil
	s.active = false
	s.readOnly = false
	s.releaseLocks()
}

// lookup resolves a key against the write set first, then the committed rows
func (s *session) lookup(table, key string) ([]byte, bool) {
	if p, ok := s.writes[table][key]; ok {
		if p.deleted {
			return nil, false
		}
		return p.value, true
	}
	t, ok := s.db.table(table)
	if !ok {
		return nil, false
	}
	return t.get(key)
}

func (s *session) write(table, key string, p *pending) {
	if s.writes == nil {
		s.writes = make(map[string]map[string]*pending)
	}
	if s.writes[table] == nil {
		s.writes[table] = make(map[string]*pending)
	}
	s.writes[table][key] = p
}

// view returns the rows matching the criteria in ascending key order
func (s *session) view(table string, criteria db.Criteria) ([]db.Row, error) {
	candidates := s.candidates(table, criteria)
	rows := candidates[:0:0]
	for _, row := range candidates {
		ok, err := criteria.Matches(row)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// candidates returns the visible rows selected by the criteria keys (or all rows) in ascending
// key order, without evaluating the predicate
func (s *session) candidates(table string, criteria db.Criteria) []db.Row {
	var candidates []db.Row

	if criteria.Keys != nil {
		keys := slices.Clone(criteria.Keys)
		slices.Sort(keys)
		keys = slices.Compact(keys)
		for _, key := range keys {
			if value, ok := s.lookup(table, key); ok {
				candidates = append(candidates, db.Row{Key: key, Value: value})
			}
		}
	} else {
		if t, ok := s.db.table(table); ok {
			candidates = t.snapshot()
		}
		if overlay := s.writes[table]; len(overlay) > 0 {
			merged := candidates[:0:0]
			for _, row := range candidates {
				if _, ok := overlay[row.Key]; !ok {
					merged = append(merged, row)
				}
			}
			for key, p := range overlay {
				if !p.deleted {
					merged = append(merged, db.Row{Key: key, Value: p.value})
				}
			}
			slices.SortFunc(merged, func(a, b db.Row) int { return strings.Compare(a.Key, b.Key) })
			candidates = merged
		}
	}
	return candidates
}

func cloneRows(rows []db.Row) []db.Row {
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		out[i] = db.Row{Key: r.Key, Value: bytes.Clone(r.Value)}
	}
	return out
}

// --------------------------------------------------------------------------
// Transaction Operations
// --------------------------------------------------------------------------

func (s *session) ID() uint64 {
	return s.id
}

func (s *session) Begin(opts db.TxOptions) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.active {
		return db.ErrTxActive
	}
	s.active = true
	s.readOnly = opts.ReadOnly
	return nil
}

func (s *session) Commit() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.active {
		return db.ErrNoTransaction
	}
	defer s.endTx()

	if len(s.writes) == 0 {
		s.db.metrics.commits.Inc()
		return nil
	}

	s.db.commit.Lock()
	defer s.db.commit.Unlock()

	// unique keys are checked again, the row may have been committed after the insert was buffered
	for name, changes := range s.writes {
		t, ok := s.db.table(name)
		if !ok {
			continue
		}
		for key, p := range changes {
			if !p.inserted {
				continue
			}
			if _, exists := t.get(key); exists {
				s.db.metrics.rollbacks.Inc()
				return fmt.Errorf("commit %s/%s: %w", name, key, db.ErrConstraintViolation)
			}
		}
	}

	for name, changes := range s.writes {
		s.db.tableOrCreate(name).apply(changes)
	}
	s.db.metrics.commits.Inc()
	return nil
}

func (s *session) Rollback() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.active {
		return db.ErrNoTransaction
	}
	s.endTx()
	s.db.metrics.rollbacks.Inc()
	return nil
}

func (s *session) Active() bool {
	return s.active && !s.closed
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	if s.active {
		s.endTx()
		s.db.metrics.rollbacks.Inc()
	}
	s.closed = true
	return nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (s *session) Get(table, key string, mode db.LockMode) (db.Row, bool, error) {
	if err := s.checkOpen(); err != nil {
		return db.Row{}, false, err
	}
	s.db.metrics.gets.Inc()

	if mode == db.LockUpgradeNoWait {
		if err := s.checkWritable(); err != nil {
			return db.Row{}, false, err
		}
		if err := s.lock(table, key); err != nil {
			return db.Row{}, false, err
		}
	}

	value, ok := s.lookup(table, key)
	if !ok {
		return db.Row{}, false, nil
	}
	return db.Row{Key: key, Value: bytes.Clone(value)}, true, nil
}

func (s *session) Select(table string, criteria db.Criteria, offset, limit int) ([]db.Row, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.db.metrics.selects.Inc()

	rows, err := s.view(table, criteria)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []db.Row{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return cloneRows(rows), nil
}

func (s *session) Scroll(table string, criteria db.Criteria) (db.Cursor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.db.metrics.selects.Inc()

	return &cursor{rows: s.candidates(table, criteria), criteria: criteria}, nil
}

func (s *session) Count(table string, criteria db.Criteria) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.db.metrics.selects.Inc()

	rows, err := s.view(table, criteria)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (s *session) Insert(table string, row db.Row) (db.Row, error) {
	if err := s.checkWritable(); err != nil {
		return db.Row{}, err
	}
	if row.Key == "" {
		row.Key = fmt.Sprintf("%020d", s.db.keySeq.Add(1))
	}
	if err := s.lock(table, row.Key); err != nil {
		return db.Row{}, err
	}
	if _, exists := s.lookup(table, row.Key); exists {
		return db.Row{}, fmt.Errorf("insert %s/%s: %w", table, row.Key, db.ErrConstraintViolation)
	}

	_, committed := s.committed(table, row.Key)
	s.write(table, row.Key, &pending{value: bytes.Clone(row.Value), inserted: !committed})
	s.db.metrics.inserts.Inc()
	return db.Row{Key: row.Key, Value: bytes.Clone(row.Value)}, nil
}

// committed reports whether the key exists outside the write set
func (s *session) committed(table, key string) ([]byte, bool) {
	t, ok := s.db.table(table)
	if !ok {
		return nil, false
	}
	return t.get(key)
}

func (s *session) Update(table string, row db.Row) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.lock(table, row.Key); err != nil {
		return err
	}
	if _, exists := s.lookup(table, row.Key); !exists {
		return fmt.Errorf("update %s/%s: %w", table, row.Key, db.ErrNotFound)
	}

	inserted := false
	if p, ok := s.writes[table][row.Key]; ok {
		inserted = p.inserted
	}
	s.write(table, row.Key, &pending{value: bytes.Clone(row.Value), inserted: inserted})
	s.db.metrics.updates.Inc()
	return nil
}

func (s *session) Delete(table, key string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.lock(table, key); err != nil {
		return err
	}
	if _, exists := s.lookup(table, key); !exists {
		return nil
	}

	if p, ok := s.writes[table][key]; ok && p.inserted {
		// never committed, forget the insert
		delete(s.writes[table], key)
	} else {
		s.write(table, key, &pending{deleted: true})
	}
	s.db.metrics.deletes.Inc()
	return nil
}

func (s *session) ExecuteNamed(params db.UpdateParams) (int, error) {
	if err := s.checkWritable(); err != nil {
		return 0, err
	}
	update, ok := s.db.named.Load(params.Name)
	if !ok {
		return 0, fmt.Errorf("%q: %w", params.Name, db.ErrUnknownNamedUpdate)
	}

	criteria := db.All()
	if update.Criteria != nil {
		c, err := update.Criteria(params.Params)
		if err != nil {
			return 0, fmt.Errorf("named update %q: %w", params.Name, err)
		}
		criteria = c
	}

	rows, err := s.view(update.Table, criteria)
	if err != nil {
		return 0, fmt.Errorf("named update %q: %w", params.Name, err)
	}
	for _, row := range rows {
		updated, err := update.Apply(db.Row{Key: row.Key, Value: bytes.Clone(row.Value)}, params.Params)
		if err != nil {
			return 0, fmt.Errorf("named update %q on %s: %w", params.Name, row.Key, err)
		}
		updated.Key = row.Key
		if err := s.Update(update.Table, updated); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
