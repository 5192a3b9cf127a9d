package dstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dShard/lib/store"
	"github.com/ValentinKolb/dShard/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT.
// It replicates a plain string -> bytes map.
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	data      *xsync.MapOf[string, []byte]
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			data:      xsync.NewMapOf[string, []byte](),
		}
	}
}

// Lookup handles read-only queries.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		val, ok := fsm.data.Load(q.Key)
		return internal.QueryResult{
			Value: bytes.Clone(val),
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		_, ok := fsm.data.Load(q.Key)
		return ok, nil
	case internal.QueryTLen:
		return fsm.data.Size(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// apply executes a single command and returns its result.
func (fsm *KVStateMachine) apply(cmd internal.Command) sm.Result {
	switch cmd.Type {
	case internal.CommandTSet:
		fsm.data.Store(cmd.Key, bytes.Clone(cmd.Value))
		return sm.Result{Value: uint64(store.RetCSuccess)}
	case internal.CommandTSetIfUnset:
		fsm.data.LoadOrStore(cmd.Key, bytes.Clone(cmd.Value))
		return sm.Result{Value: uint64(store.RetCSuccess)}
	case internal.CommandTDelete:
		fsm.data.Delete(cmd.Key)
		return sm.Result{Value: uint64(store.RetCSuccess)}
	case internal.CommandTDeleteIfEqual:
		deleted := false
		fsm.data.Compute(cmd.Key, func(old []byte, loaded bool) ([]byte, bool) {
			if !loaded {
				return nil, true
			}
			if !bytes.Equal(old, cmd.Value) {
				return old, false
			}
			deleted = true
			return nil, true
		})
		if deleted {
			return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte{1}}
		}
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte{0}}
	default:
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
}

// Update handles write commands.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}
		entries[idx].Result = fsm.apply(cmd)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot copies the current map. The copy is written by SaveSnapshot.
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	snapshot := make(map[string][]byte, fsm.data.Size())
	fsm.data.Range(func(key string, value []byte) bool {
		snapshot[key] = bytes.Clone(value)
		return true
	})
	return snapshot, nil
}

// SaveSnapshot writes the prepared copy as gob to the writer
func (fsm *KVStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snapshot, ok := ctx.(map[string][]byte)
	if !ok {
		return fmt.Errorf("unexpected snapshot context %T", ctx)
	}
	return gob.NewEncoder(writer).Encode(snapshot)
}

// RecoverFromSnapshot replaces the map with the snapshot content.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var snapshot map[string][]byte
	if err := gob.NewDecoder(r).Decode(&snapshot); err != nil {
		return err
	}
	fsm.data.Clear()
	for k, v := range snapshot {
		fsm.data.Store(k, v)
	}
	return nil
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	fsm.data.Clear()
	return nil
}
