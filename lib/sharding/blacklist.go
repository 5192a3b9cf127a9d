package sharding

import (
	"strconv"

	"github.com/ValentinKolb/dShard/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// BlacklistingStore persists the blacklisted flag per shard. Implementations must be safe for concurrent use.
type BlacklistingStore interface {
	// Blacklist marks a shard as blacklisted. Blacklisting twice is not an error.
	Blacklist(shardID int) error
	// Unblacklist clears the flag. Unblacklisting a shard that is not blacklisted is not an error.
	Unblacklist(shardID int) error
	// Blacklisted reports whether the shard is blacklisted.
	Blacklisted(shardID int) (bool, error)
}

// --------------------------------------------------------------------------
// In memory
// --------------------------------------------------------------------------

// InMemoryBlacklistingStore keeps the flags inside the process.
type InMemoryBlacklistingStore struct {
	flags *xsync.MapOf[int, struct{}]
}

func NewInMemoryBlacklistingStore() *InMemoryBlacklistingStore {
	return &InMemoryBlacklistingStore{flags: xsync.NewMapOf[int, struct{}]()}
}

func (s *InMemoryBlacklistingStore) Blacklist(shardID int) error {
	s.flags.Store(shardID, struct{}{})
	return nil
}

func (s *InMemoryBlacklistingStore) Unblacklist(shardID int) error {
	s.flags.Delete(shardID)
	return nil
}

func (s *InMemoryBlacklistingStore) Blacklisted(shardID int) (bool, error) {
	_, ok := s.flags.Load(shardID)
	return ok, nil
}

// --------------------------------------------------------------------------
// Backed by a store.IStore (local or raft replicated)
// --------------------------------------------------------------------------

const blacklistKeyPrefix = "blacklist/"

var blacklistedValue = []byte{1}

// StoreBlacklistingStore keeps the flags in a store.IStore, so every process sharing the
// store sees the same blacklist. Keys have the form blacklist/<shard id>.
type StoreBlacklistingStore struct {
	store store.IStore
}

func NewStoreBlacklistingStore(s store.IStore) *StoreBlacklistingStore {
	return &StoreBlacklistingStore{store: s}
}

func blacklistKey(shardID int) string {
	return blacklistKeyPrefix + strconv.Itoa(shardID)
}

func (s *StoreBlacklistingStore) Blacklist(shardID int) error {
	return s.store.Set(blacklistKey(shardID), blacklistedValue)
}

func (s *StoreBlacklistingStore) Unblacklist(shardID int) error {
	return s.store.Delete(blacklistKey(shardID))
}

func (s *StoreBlacklistingStore) Blacklisted(shardID int) (bool, error) {
	return s.store.Has(blacklistKey(shardID))
}
