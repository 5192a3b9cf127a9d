package testing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
)

// BackendFactory is a function that creates a new, empty instance of a Backend implementation
type BackendFactory func() db.Backend

// namedUpdateRegistry is implemented by backends that accept named updates at runtime
type namedUpdateRegistry interface {
	RegisterNamedUpdate(name string, update db.NamedUpdate)
}

const testTable = "entities"

// RunBackendTests runs the conformance suite for a Backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Get", func(t *testing.T) {
			testInsertGet(t, factory())
		})

		t.Run("KeyGeneration", func(t *testing.T) {
			testKeyGeneration(t, factory())
		})

		t.Run("DuplicateInsert", func(t *testing.T) {
			testDuplicateInsert(t, factory())
		})

		t.Run("Update&Delete", func(t *testing.T) {
			testUpdateDelete(t, factory())
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory())
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, factory())
		})

		t.Run("Select", func(t *testing.T) {
			testSelect(t, factory())
		})

		t.Run("Scroll", func(t *testing.T) {
			testScroll(t, factory())
		})

		t.Run("LockNoWait", func(t *testing.T) {
			testLockNoWait(t, factory())
		})

		t.Run("TransactionStates", func(t *testing.T) {
			testTransactionStates(t, factory())
		})

		t.Run("NamedUpdate", func(t *testing.T) {
			testNamedUpdate(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})

		t.Run("ConcurrentInserts", func(t *testing.T) {
			testConcurrentInserts(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the backend supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, backend db.Backend, feature db.Feature) {
	if !backend.SupportsFeature(feature) {
		t.Skip()
	}
}

// begin opens a session with an active transaction
func begin(t testing.TB, backend db.Backend, readOnly bool) db.Session {
	t.Helper()
	s, err := backend.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Begin(db.TxOptions{ReadOnly: readOnly}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return s
}

// commit commits and closes the session
func commit(t testing.TB, s db.Session) {
	t.Helper()
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	_ = s.Close()
}

// seed inserts the rows in a single committed transaction
func seed(t testing.TB, backend db.Backend, rows ...db.Row) {
	t.Helper()
	s := begin(t, backend, false)
	for _, r := range rows {
		if _, err := s.Insert(testTable, r); err != nil {
			t.Fatalf("Insert(%s) error = %v", r.Key, err)
		}
	}
	commit(t, s)
}

// get reads a row in its own read-only transaction
func get(t testing.TB, backend db.Backend, key string) (db.Row, bool) {
	t.Helper()
	s := begin(t, backend, true)
	defer s.Close()
	row, ok, err := s.Get(testTable, key, db.LockNone)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	return row, ok
}

func keysOf(rows []db.Row) string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return strings.Join(keys, ",")
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, backend db.Backend) {
	defer backend.Close()
	requireFeature(t, backend, db.FeatureTransactions)

	seed(t, backend, db.Row{Key: "a", Value: []byte("value-a")})

	row, ok := get(t, backend, "a")
	if !ok {
		t.Fatalf("Expected key a to exist after commit")
	}
	if !bytes.Equal(row.Value, []byte("value-a")) {
		t.Errorf("Expected value %s, got %s", "value-a", row.Value)
	}

	row.Value[0] = 'X'
	again, _ := get(t, backend, "a")
	if !bytes.Equal(again.Value, []byte("value-a")) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	if _, ok := get(t, backend, "missing"); ok {
		t.Errorf("Expected missing key to return found=false")
	}
}

func testKeyGeneration(t *testing.T, backend db.Backend) {
	defer backend.Close()
	requireFeature(t, backend, db.FeatureKeyGeneration)

	s := begin(t, backend, false)
	first, err := s.Insert(testTable, db.Row{Value: []byte("1")})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	second, err := s.Insert(testTable, db.Row{Value: []byte("2")})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	commit(t, s)

	if first.Key == "" || second.Key == "" {
		t.Fatalf("Expected generated keys, got %q and %q", first.Key, second.Key)
	}
	if first.Key >= second.Key {
		t.Errorf("Expected ascending generated keys, got %q then %q", first.Key, second.Key)
	}
	if _, ok := get(t, backend, second.Key); !ok {
		t.Errorf("Expected generated key %s to exist", second.Key)
	}
}

func testDuplicateInsert(t *testing.T, backend db.Backend) {
	defer backend.Close()

	seed(t, backend, db.Row{Key: "dup", Value: []byte("1")})

	s := begin(t, backend, false)
	defer s.Close()
	if _, err := s.Insert(testTable, db.Row{Key: "dup", Value: []byte("2")}); !errors.Is(err, db.ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation for committed key, got %v", err)
	}
	if _, err := s.Insert(testTable, db.Row{Key: "fresh", Value: []byte("1")}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := s.Insert(testTable, db.Row{Key: "fresh", Value: []byte("2")}); !errors.Is(err, db.ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation for key inserted in the same transaction, got %v", err)
	}
}

func testUpdateDelete(t *testing.T, backend db.Backend) {
	defer backend.Close()

	seed(t, backend, db.Row{Key: "u", Value: []byte("old")}, db.Row{Key: "d", Value: []byte("x")})

	s := begin(t, backend, false)
	if err := s.Update(testTable, db.Row{Key: "u", Value: []byte("new")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Update(testTable, db.Row{Key: "missing", Value: []byte("x")}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when updating a missing row, got %v", err)
	}
	if err := s.Delete(testTable, "d"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(testTable, "missing"); err != nil {
		t.Errorf("Deleting a missing row should not fail, got %v", err)
	}
	commit(t, s)

	row, ok := get(t, backend, "u")
	if !ok || !bytes.Equal(row.Value, []byte("new")) {
		t.Errorf("Expected updated value new, got %s (found=%v)", row.Value, ok)
	}
	if _, ok := get(t, backend, "d"); ok {
		t.Errorf("Expected deleted row to be gone")
	}

	// delete followed by insert of the same key in one transaction
	s = begin(t, backend, false)
	if err := s.Delete(testTable, "u"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Insert(testTable, db.Row{Key: "u", Value: []byte("reborn")}); err != nil {
		t.Fatalf("Insert() after Delete() error = %v", err)
	}
	commit(t, s)
	if row, _ := get(t, backend, "u"); !bytes.Equal(row.Value, []byte("reborn")) {
		t.Errorf("Expected value reborn, got %s", row.Value)
	}
}

func testRollback(t *testing.T, backend db.Backend) {
	defer backend.Close()

	seed(t, backend, db.Row{Key: "keep", Value: []byte("1")})

	s := begin(t, backend, false)
	if _, err := s.Insert(testTable, db.Row{Key: "tmp", Value: []byte("1")}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Update(testTable, db.Row{Key: "keep", Value: []byte("2")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	_ = s.Close()

	if _, ok := get(t, backend, "tmp"); ok {
		t.Errorf("Expected rolled back insert to be discarded")
	}
	if row, _ := get(t, backend, "keep"); !bytes.Equal(row.Value, []byte("1")) {
		t.Errorf("Expected rolled back update to be discarded, got %s", row.Value)
	}
}

func testIsolation(t *testing.T, backend db.Backend) {
	defer backend.Close()

	writer := begin(t, backend, false)
	if _, err := writer.Insert(testTable, db.Row{Key: "iso", Value: []byte("1")}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// own writes are visible
	if _, ok, err := writer.Get(testTable, "iso", db.LockNone); err != nil || !ok {
		t.Errorf("Expected own uncommitted write to be visible (found=%v, err=%v)", ok, err)
	}
	if n, err := writer.Count(testTable, db.All()); err != nil || n != 1 {
		t.Errorf("Expected count 1 inside the transaction, got %d (err=%v)", n, err)
	}

	// other sessions do not see them
	if _, ok := get(t, backend, "iso"); ok {
		t.Errorf("Uncommitted write leaked to another session")
	}

	commit(t, writer)
	if _, ok := get(t, backend, "iso"); !ok {
		t.Errorf("Expected committed write to be visible")
	}
}

func testSelect(t *testing.T, backend db.Backend) {
	defer backend.Close()

	var rows []db.Row
	for _, k := range []string{"k3", "k1", "k5", "k2", "k4"} {
		rows = append(rows, db.Row{Key: k, Value: []byte("v-" + k)})
	}
	seed(t, backend, rows...)

	s := begin(t, backend, true)
	defer s.Close()

	tests := []struct {
		name     string
		criteria db.Criteria
		offset   int
		limit    int
		expected string
	}{
		{"All", db.All(), 0, 0, "k1,k2,k3,k4,k5"},
		{"Offset", db.All(), 2, 0, "k3,k4,k5"},
		{"Limit", db.All(), 0, 2, "k1,k2"},
		{"OffsetLimit", db.All(), 1, 3, "k2,k3,k4"},
		{"OffsetBeyondEnd", db.All(), 10, 0, ""},
		{"Keys", db.Criteria{Keys: []string{"k4", "k1", "k9", "k1"}}, 0, 0, "k1,k4"},
		{"Match", db.Criteria{Match: func(r db.Row) (bool, error) {
			return r.Key >= "k4", nil
		}}, 0, 0, "k4,k5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Select(testTable, tt.criteria, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if keysOf(got) != tt.expected {
				t.Errorf("Select() = %q, want %q", keysOf(got), tt.expected)
			}
		})
	}

	n, err := s.Count(testTable, db.Criteria{Keys: []string{"k1", "k2", "nope"}})
	if err != nil || n != 2 {
		t.Errorf("Count() = %d (err=%v), want 2", n, err)
	}

	matchErr := errors.New("broken predicate")
	if _, err := s.Select(testTable, db.Criteria{Match: func(db.Row) (bool, error) { return false, matchErr }}, 0, 0); !errors.Is(err, matchErr) {
		t.Errorf("Expected predicate error to surface, got %v", err)
	}

	if got, err := s.Select("unknown_table", db.All(), 0, 0); err != nil || len(got) != 0 {
		t.Errorf("Expected empty result for unknown table, got %d rows (err=%v)", len(got), err)
	}
}

func testScroll(t *testing.T, backend db.Backend) {
	defer backend.Close()
	requireFeature(t, backend, db.FeatureScroll)

	seed(t, backend,
		db.Row{Key: "s2", Value: []byte("2")},
		db.Row{Key: "s1", Value: []byte("1")},
		db.Row{Key: "s3", Value: []byte("3")},
	)

	s := begin(t, backend, false)
	defer s.Close()

	cur, err := s.Scroll(testTable, db.All())
	if err != nil {
		t.Fatalf("Scroll() error = %v", err)
	}
	var seen []db.Row
	for cur.Next() {
		row := cur.Row()
		seen = append(seen, row)
		// writes while scrolling do not disturb the cursor
		if err := s.Update(testTable, db.Row{Key: row.Key, Value: append(row.Value, '!')}); err != nil {
			t.Fatalf("Update() while scrolling error = %v", err)
		}
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor error = %v", err)
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if cur.Next() {
		t.Errorf("Next() after Close() should return false")
	}
	if keysOf(seen) != "s1,s2,s3" {
		t.Errorf("Scroll order = %q, want s1,s2,s3", keysOf(seen))
	}
	commit(t, s)

	if row, _ := get(t, backend, "s2"); string(row.Value) != "2!" {
		t.Errorf("Expected scrolled update 2!, got %s", row.Value)
	}
}

func testLockNoWait(t *testing.T, backend db.Backend) {
	defer backend.Close()
	requireFeature(t, backend, db.FeatureLocking)

	seed(t, backend, db.Row{Key: "locked", Value: []byte("1")})

	owner := begin(t, backend, false)
	if _, ok, err := owner.Get(testTable, "locked", db.LockUpgradeNoWait); err != nil || !ok {
		t.Fatalf("Get(UpgradeNoWait) found=%v error = %v", ok, err)
	}
	// re-entrant for the owner
	if _, _, err := owner.Get(testTable, "locked", db.LockUpgradeNoWait); err != nil {
		t.Fatalf("Second Get(UpgradeNoWait) by owner error = %v", err)
	}

	other := begin(t, backend, false)
	if _, _, err := other.Get(testTable, "locked", db.LockUpgradeNoWait); !errors.Is(err, db.ErrLockContention) {
		t.Errorf("Expected ErrLockContention, got %v", err)
	}
	if err := other.Update(testTable, db.Row{Key: "locked", Value: []byte("2")}); !errors.Is(err, db.ErrLockContention) {
		t.Errorf("Expected ErrLockContention on update, got %v", err)
	}
	// plain reads do not block
	if _, ok, err := other.Get(testTable, "locked", db.LockRead); err != nil || !ok {
		t.Errorf("Expected plain read to succeed, found=%v err=%v", ok, err)
	}
	_ = other.Rollback()
	_ = other.Close()

	commit(t, owner)

	next := begin(t, backend, false)
	if _, _, err := next.Get(testTable, "locked", db.LockUpgradeNoWait); err != nil {
		t.Errorf("Expected lock to be released after commit, got %v", err)
	}
	_ = next.Close()

	// closing a session releases its locks too
	after := begin(t, backend, false)
	if _, _, err := after.Get(testTable, "locked", db.LockUpgradeNoWait); err != nil {
		t.Errorf("Expected lock to be released after close, got %v", err)
	}
	_ = after.Close()
}

func testTransactionStates(t *testing.T, backend db.Backend) {
	defer backend.Close()

	s, err := backend.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if s.Active() {
		t.Errorf("New session should not have an active transaction")
	}
	if err := s.Commit(); !errors.Is(err, db.ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction on commit, got %v", err)
	}
	if _, err := s.Insert(testTable, db.Row{Key: "x"}); !errors.Is(err, db.ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction on insert, got %v", err)
	}

	if err := s.Begin(db.TxOptions{ReadOnly: true}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !s.Active() {
		t.Errorf("Expected active transaction after Begin")
	}
	if err := s.Begin(db.TxOptions{}); !errors.Is(err, db.ErrTxActive) {
		t.Errorf("Expected ErrTxActive, got %v", err)
	}
	if _, err := s.Insert(testTable, db.Row{Key: "x"}); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	if _, _, err := s.Get(testTable, "x", db.LockUpgradeNoWait); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for locking read, got %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Errorf("Commit() of read-only transaction error = %v", err)
	}
	if s.Active() {
		t.Errorf("Expected no active transaction after Commit")
	}
}

func testNamedUpdate(t *testing.T, backend db.Backend) {
	defer backend.Close()
	requireFeature(t, backend, db.FeatureNamedUpdates)

	registry, ok := backend.(namedUpdateRegistry)
	if !ok {
		t.Skip("backend does not accept named updates at runtime")
	}
	registry.RegisterNamedUpdate("suffix", db.NamedUpdate{
		Table: testTable,
		Criteria: func(params map[string]any) (db.Criteria, error) {
			prefix, ok := params["prefix"].(string)
			if !ok {
				return db.Criteria{}, fmt.Errorf("prefix parameter missing")
			}
			return db.Criteria{Match: func(r db.Row) (bool, error) {
				return strings.HasPrefix(r.Key, prefix), nil
			}}, nil
		},
		Apply: func(r db.Row, params map[string]any) (db.Row, error) {
			r.Value = append(r.Value, []byte(params["suffix"].(string))...)
			return r, nil
		},
	})

	seed(t, backend,
		db.Row{Key: "a-1", Value: []byte("x")},
		db.Row{Key: "a-2", Value: []byte("y")},
		db.Row{Key: "b-1", Value: []byte("z")},
	)

	s := begin(t, backend, false)
	n, err := s.ExecuteNamed(db.UpdateParams{Name: "suffix", Params: map[string]any{"prefix": "a-", "suffix": "!"}})
	if err != nil {
		t.Fatalf("ExecuteNamed() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExecuteNamed() affected %d rows, want 2", n)
	}
	if _, err := s.ExecuteNamed(db.UpdateParams{Name: "nope"}); !errors.Is(err, db.ErrUnknownNamedUpdate) {
		t.Errorf("Expected ErrUnknownNamedUpdate, got %v", err)
	}
	if _, err := s.ExecuteNamed(db.UpdateParams{Name: "suffix"}); err == nil {
		t.Errorf("Expected error for missing parameter")
	}
	commit(t, s)

	for key, want := range map[string]string{"a-1": "x!", "a-2": "y!", "b-1": "z"} {
		if row, _ := get(t, backend, key); string(row.Value) != want {
			t.Errorf("%s = %s, want %s", key, row.Value, want)
		}
	}
}

func testClose(t *testing.T, backend db.Backend) {
	seed(t, backend, db.Row{Key: "c", Value: []byte("1")})

	// closing a session with an active transaction discards it
	s := begin(t, backend, false)
	if err := s.Update(testTable, db.Row{Key: "c", Value: []byte("2")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() should be idempotent, got %v", err)
	}
	if row, _ := get(t, backend, "c"); string(row.Value) != "1" {
		t.Errorf("Expected close to roll back, got %s", row.Value)
	}

	if err := backend.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("backend Close() error = %v", err)
	}
	if err := backend.Ping(); err == nil {
		t.Errorf("Expected Ping() to fail after Close()")
	}
	if _, err := backend.Open(); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Open() after Close(), got %v", err)
	}
}

func testConcurrentInserts(t *testing.T, backend db.Backend) {
	defer backend.Close()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s, err := backend.Open()
			if err != nil {
				errs <- err
				return
			}
			defer s.Close()
			if err := s.Begin(db.TxOptions{}); err != nil {
				errs <- err
				return
			}
			for i := 0; i < perWorker; i++ {
				if _, err := s.Insert(testTable, db.Row{Key: fmt.Sprintf("w%d-%03d", w, i), Value: []byte("v")}); err != nil {
					errs <- err
					return
				}
			}
			if err := s.Commit(); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("worker error: %v", err)
	}

	s := begin(t, backend, true)
	defer s.Close()
	n, err := s.Count(testTable, db.All())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != workers*perWorker {
		t.Errorf("Count() = %d, want %d", n, workers*perWorker)
	}
}
