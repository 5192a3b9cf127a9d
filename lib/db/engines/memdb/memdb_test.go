package memdb

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
	dbtesting "github.com/ValentinKolb/dShard/lib/db/testing"
	"github.com/ValentinKolb/dShard/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t testing.TB, name string) *MemDB {
	t.Helper()
	m, err := NewMemDB(DefaultOptions(name))
	require.NoError(t, err)
	return m
}

func TestMemDB(t *testing.T) {
	dbtesting.RunBackendTests(t, "MemDB", func() db.Backend {
		return newBackend(t, "conformance")
	})
}

func BenchmarkMemDB(b *testing.B) {
	dbtesting.RunBackendBenchmarks(b, "MemDB", func() db.Backend {
		return newBackend(b, "bench")
	})
}

func TestSelectCounter(t *testing.T) {
	m := newBackend(t, "counter")
	defer m.Close()

	s, err := m.Open()
	require.NoError(t, err)
	defer s.Close()

	before := m.Selects()
	_, err = s.Select("t", db.Criteria{Keys: []string{"a", "b"}}, 0, 0)
	require.NoError(t, err)
	_, err = s.Count("t", db.All())
	require.NoError(t, err)
	_, _, err = s.Get("t", "a", db.LockNone)
	require.NoError(t, err)

	assert.Equal(t, before+2, m.Selects())
}

func TestMetricsOutput(t *testing.T) {
	m := newBackend(t, "metrics-out")
	defer m.Close()

	s, err := m.Open()
	require.NoError(t, err)
	require.NoError(t, s.Begin(db.TxOptions{}))
	_, err = s.Insert("t", db.Row{Key: "a"})
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	m.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `memdb_inserts_total{backend="metrics-out"} 1`)
	assert.Contains(t, out, `memdb_commits_total{backend="metrics-out"} 1`)
}

func TestSharedLockStore(t *testing.T) {
	locks := lstore.NewLocalStore()
	a, err := NewMemDB(&Options{Name: "a", LockStore: locks})
	require.NoError(t, err)
	b, err := NewMemDB(&Options{Name: "b", LockStore: locks, NodeID: 1})
	require.NoError(t, err)

	sa, err := a.Open()
	require.NoError(t, err)
	require.NoError(t, sa.Begin(db.TxOptions{}))
	_, err = sa.Insert("t", db.Row{Key: "k"})
	require.NoError(t, err)

	// locks are scoped by backend name
	sb, err := b.Open()
	require.NoError(t, err)
	require.NoError(t, sb.Begin(db.TxOptions{}))
	_, err = sb.Insert("t", db.Row{Key: "k"})
	require.NoError(t, err)

	require.NoError(t, sa.Commit())
	require.NoError(t, sb.Commit())
}

func TestCommitConstraintCheck(t *testing.T) {
	m := newBackend(t, "constraint")
	defer m.Close()

	s, err := m.Open()
	require.NoError(t, err)
	require.NoError(t, s.Begin(db.TxOptions{}))
	_, err = s.Insert("t", db.Row{Key: "k", Value: []byte("1")})
	require.NoError(t, err)

	// the row shows up in the committed table behind the session's back
	m.tableOrCreate("t").apply(map[string]*pending{"k": {value: []byte("other")}})

	err = s.Commit()
	assert.True(t, errors.Is(err, db.ErrConstraintViolation))
	assert.False(t, s.Active())

	v, ok := m.tableOrCreate("t").get("k")
	require.True(t, ok)
	assert.Equal(t, "other", string(v))
}

func TestGetInfo(t *testing.T) {
	m := newBackend(t, "info")
	defer m.Close()
	m.RegisterNamedUpdate("noop", db.NamedUpdate{Table: "t", Apply: func(r db.Row, _ map[string]any) (db.Row, error) { return r, nil }})

	s, err := m.Open()
	require.NoError(t, err)
	require.NoError(t, s.Begin(db.TxOptions{}))
	for _, k := range []string{"a", "b", "c"} {
		_, err = s.Insert("t", db.Row{Key: k})
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit())

	info := m.GetInfo()
	assert.Equal(t, db.ImplMemDB, info.DbType)
	assert.Equal(t, 3, info.Tables["t"])
	assert.True(t, m.SupportsFeature(db.FeatureLocking|db.FeatureScroll))
	assert.True(t, strings.HasPrefix(m.Name(), "info"))
}

func TestScrollEvaluatesCriteriaLazily(t *testing.T) {
	m := newBackend(t, "scroll-lazy")
	defer m.Close()

	s, err := m.Open()
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Begin(db.TxOptions{}))
	for _, key := range []string{"r1", "r2", "r3", "r4", "r5"} {
		_, err = s.Insert("t", db.Row{Key: key, Value: []byte(key)})
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit())

	evaluated := 0
	errBroken := errors.New("broken row")
	cur, err := s.Scroll("t", db.Criteria{Match: func(row db.Row) (bool, error) {
		evaluated++
		if row.Key == "r4" {
			return false, errBroken
		}
		return row.Key != "r2", nil
	}})
	require.NoError(t, err)
	defer cur.Close()
	assert.Zero(t, evaluated)

	require.True(t, cur.Next())
	assert.Equal(t, "r1", cur.Row().Key)
	assert.Equal(t, 1, evaluated)

	require.True(t, cur.Next())
	assert.Equal(t, "r3", cur.Row().Key)
	assert.Equal(t, 3, evaluated)

	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), errBroken)
	assert.Equal(t, 4, evaluated)
	assert.False(t, cur.Next())
}
