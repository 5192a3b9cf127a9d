package memdb

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/lockmgr"
	"github.com/ValentinKolb/dShard/lib/store"
	"github.com/ValentinKolb/dShard/lib/store/lstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("memdb")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a MemDB.
type Options struct {
	Name         string                    // Backend name, used as metrics label (default "memdb")
	NodeID       int64                     // Snowflake node id for session ids (0-1023)
	LockStore    store.IStore              // Store holding the row locks (nil = local store)
	NamedUpdates map[string]db.NamedUpdate // Named updates registered at startup
}

// DefaultOptions returns options for a standalone backend.
func DefaultOptions(name string) *Options {
	return &Options{Name: name}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// MemDB is an in-memory transactional backend. Tables are btrees created on first commit.
// Sessions buffer their writes and apply them atomically on commit, row locks are
// no-wait and held until the end of the transaction.
type MemDB struct {
	name    string
	tables  *xsync.MapOf[string, *table]
	named   *xsync.MapOf[string, db.NamedUpdate]
	locks   lockmgr.ILockManager
	ids     *snowflake.Node
	keySeq  atomic.Uint64
	commit  sync.Mutex
	closed  atomic.Bool
	metrics *stats
}

type stats struct {
	set           *metrics.Set
	gets          *metrics.Counter
	selects       *metrics.Counter
	inserts       *metrics.Counter
	updates       *metrics.Counter
	deletes       *metrics.Counter
	commits       *metrics.Counter
	rollbacks     *metrics.Counter
	lockConflicts *metrics.Counter
}

func newStats(name string) *stats {
	s := &stats{set: metrics.NewSet()}
	counter := func(metric string) *metrics.Counter {
		return s.set.NewCounter(fmt.Sprintf(`memdb_%s_total{backend=%q}`, metric, name))
	}
	s.gets = counter("gets")
	s.selects = counter("selects")
	s.inserts = counter("inserts")
	s.updates = counter("updates")
	s.deletes = counter("deletes")
	s.commits = counter("commits")
	s.rollbacks = counter("rollbacks")
	s.lockConflicts = counter("lock_conflicts")
	return s
}

// NewMemDB creates a new backend with the given options (optional).
func NewMemDB(opts *Options) (*MemDB, error) {
	if opts == nil {
		opts = DefaultOptions("memdb")
	}
	name := opts.Name
	if name == "" {
		name = "memdb"
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("memdb %s: %w", name, err)
	}

	lockStore := opts.LockStore
	if lockStore == nil {
		lockStore = lstore.NewLocalStore()
	}

	m := &MemDB{
		name:    name,
		tables:  xsync.NewMapOf[string, *table](),
		named:   xsync.NewMapOf[string, db.NamedUpdate](),
		locks:   lockmgr.NewLockManager(lockStore),
		ids:     node,
		metrics: newStats(name),
	}
	for updateName, update := range opts.NamedUpdates {
		m.RegisterNamedUpdate(updateName, update)
	}
	return m, nil
}

// RegisterNamedUpdate registers (or replaces) a named update.
func (m *MemDB) RegisterNamedUpdate(name string, update db.NamedUpdate) {
	m.named.Store(name, update)
}

// Name returns the backend name.
func (m *MemDB) Name() string {
	return m.name
}

// WriteMetrics writes the counters of this backend in Prometheus text format.
func (m *MemDB) WriteMetrics(w io.Writer) {
	m.metrics.set.WritePrometheus(w)
}

// Selects returns the number of queries (Select, Scroll, Count) issued against the backend.
func (m *MemDB) Selects() uint64 {
	return m.metrics.selects.Get()
}

func (m *MemDB) table(name string) (*table, bool) {
	return m.tables.Load(name)
}

func (m *MemDB) tableOrCreate(name string) *table {
	t, _ := m.tables.LoadOrCompute(name, newTable)
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docs see db/db.go)
// --------------------------------------------------------------------------

func (m *MemDB) Open() (db.Session, error) {
	if m.closed.Load() {
		return nil, db.ErrClosed
	}
	id := uint64(m.ids.Generate().Int64())
	return &session{
		db:    m,
		id:    id,
		owner: lockmgr.OwnerIDFromUint64(id),
	}, nil
}

func (m *MemDB) Ping() error {
	if m.closed.Load() {
		return fmt.Errorf("memdb %s: %w", m.name, db.ErrClosed)
	}
	return nil
}

func (m *MemDB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureTransactions | db.FeatureReadOnly | db.FeatureLocking |
		db.FeatureScroll | db.FeatureNamedUpdates | db.FeatureKeyGeneration
	return feature&supported == feature
}

func (m *MemDB) GetInfo() db.DatabaseInfo {
	tables := make(map[string]int)
	m.tables.Range(func(name string, t *table) bool {
		tables[name] = t.len()
		return true
	})
	return db.DatabaseInfo{
		Name:   m.name,
		DbType: db.ImplMemDB,
		Tables: tables,
		SupportedFeatures: []db.Feature{
			db.FeatureTransactions, db.FeatureReadOnly, db.FeatureLocking,
			db.FeatureScroll, db.FeatureNamedUpdates, db.FeatureKeyGeneration,
		},
		Metadata: map[string]any{
			"named_updates": m.named.Size(),
		},
	}
}

func (m *MemDB) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	log.Infof("backend %s closed", m.name)
	return nil
}
