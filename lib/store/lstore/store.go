package lstore

import (
	"bytes"

	"github.com/ValentinKolb/dShard/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	data *xsync.MapOf[string, []byte]
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works inside a single process.
func NewLocalStore() store.IStore {
	return &storeImpl{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// clone copies a value so callers never share the stored slice.
func clone(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return bytes.Clone(value)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	s.data.Store(key, clone(value))
	return nil
}

func (s *storeImpl) SetIfUnset(key string, value []byte) error {
	s.data.LoadOrStore(key, clone(value))
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	val, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return clone(val), true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	_, ok := s.data.Load(key)
	return ok, nil
}

func (s *storeImpl) Delete(key string) error {
	s.data.Delete(key)
	return nil
}

func (s *storeImpl) DeleteIfEqual(key string, expected []byte) (bool, error) {
	deleted := false
	s.data.Compute(key, func(old []byte, loaded bool) ([]byte, bool) {
		if !loaded {
			return nil, true
		}
		if !bytes.Equal(old, expected) {
			return old, false
		}
		deleted = true
		return nil, true
	})
	return deleted, nil
}
