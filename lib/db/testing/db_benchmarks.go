package testing

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
)

// RunBackendBenchmarks runs all benchmarks for a Backend implementation
func RunBackendBenchmarks(b *testing.B, name string, factory BackendFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			benchmarkInsert(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("LockedUpdate", func(b *testing.B) {
			benchmarkLockedUpdate(b, factory())
		})

		b.Run("SelectKeys", func(b *testing.B) {
			benchmarkSelectKeys(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func prepare(b *testing.B, backend db.Backend, n int) {
	b.Helper()
	s := begin(b, backend, false)
	for i := 0; i < n; i++ {
		if _, err := s.Insert(testTable, db.Row{Key: fmt.Sprintf("bench-%d", i), Value: []byte("value")}); err != nil {
			b.Fatalf("Insert() error = %v", err)
		}
	}
	commit(b, s)
}

// Benchmark for a single insert per transaction
func benchmarkInsert(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s, _ := backend.Open()
			_ = s.Begin(db.TxOptions{})
			_, _ = s.Insert(testTable, db.Row{Key: fmt.Sprintf("bench-%d", counter.Add(1)), Value: []byte("value")})
			_ = s.Commit()
			_ = s.Close()
		}
	})
}

// Benchmark for plain reads of existing rows
func benchmarkGet(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	const numKeys = 1000
	prepare(b, backend, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		s, _ := backend.Open()
		defer s.Close()
		counter := 0
		for pb.Next() {
			_, _, _ = s.Get(testTable, fmt.Sprintf("bench-%d", counter%numKeys), db.LockNone)
			counter++
		}
	})
}

// Benchmark for lock, read and update of one row per transaction
func benchmarkLockedUpdate(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})
	requireFeature(b, backend, db.FeatureLocking)

	const numKeys = 1000
	prepare(b, backend, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench-%d", i%numKeys)
		s, _ := backend.Open()
		_ = s.Begin(db.TxOptions{})
		row, _, _ := s.Get(testTable, key, db.LockUpgradeNoWait)
		_ = s.Update(testTable, db.Row{Key: key, Value: bytes.ToUpper(row.Value)})
		_ = s.Commit()
		_ = s.Close()
	}
}

// Benchmark for an IN query of ten keys
func benchmarkSelectKeys(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	const numKeys = 1000
	prepare(b, backend, numKeys)

	keys := make([]string, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range keys {
			keys[j] = fmt.Sprintf("bench-%d", (i+j*97)%numKeys)
		}
		s, _ := backend.Open()
		_, _ = s.Select(testTable, db.Criteria{Keys: keys}, 0, 0)
		_ = s.Close()
	}
}
