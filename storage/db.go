package storage

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// Entry is a single key/value pair inside a batched write.
type Entry struct {
	Key   []byte
	Value []byte
}

// Database is a generic interface for a key-value store. The vault keeps all
// of its tables (balances, policies, clocks, receipts) in one store so a
// single WriteBatch can commit a whole operation atomically.
type Database interface {
	Put(key []byte, value []byte) error
	// Get returns the stored value and whether the key was present.
	Get(key []byte) ([]byte, bool, error)
	// WriteBatch applies all entries as one atomic write.
	WriteBatch(entries []Entry) error
	Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (db *MemDB) WriteBatch(entries []Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, entry := range entries {
		db.data[string(entry.Key)] = append([]byte(nil), entry.Value...)
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, bool, error) {
	value, err := ldb.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// WriteBatch applies the entries through a leveldb batch so they land
// together or not at all.
func (ldb *LevelDB) WriteBatch(entries []Entry) error {
	batch := new(leveldb.Batch)
	for _, entry := range entries {
		batch.Put(entry.Key, entry.Value)
	}
	return ldb.db.Write(batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
