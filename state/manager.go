package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"swapvault/storage"
)

// Manager wraps a storage.Database with an RLP codec so callers work with
// typed records instead of raw bytes.
type Manager struct {
	db storage.Database
}

// NewManager constructs a manager bound to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. It reports whether the
// key was present. Passing a nil out performs an existence check only.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	encoded, ok, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stores it under key immediately, outside any
// transaction. Use Begin for multi-key atomic updates.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// Begin opens a staged transaction. Reads see staged writes layered over the
// underlying store; nothing touches the store until Commit.
func (m *Manager) Begin() *Txn {
	return &Txn{manager: m, staged: make(map[string][]byte)}
}

// Txn buffers writes so an operation's reads-then-writes either all land via
// one storage batch or none do. Discarding a Txn is just dropping it.
type Txn struct {
	manager *Manager
	staged  map[string][]byte
	order   []string
}

// KVGet reads through the staged overlay first, then the underlying store.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if t == nil || t.manager == nil {
		return false, fmt.Errorf("state: txn not initialised")
	}
	if encoded, ok := t.staged[string(key)]; ok {
		if out == nil {
			return true, nil
		}
		if err := rlp.DecodeBytes(encoded, out); err != nil {
			return false, fmt.Errorf("state: decode staged %q: %w", key, err)
		}
		return true, nil
	}
	return t.manager.KVGet(key, out)
}

// KVPut stages the encoded value; it becomes visible to subsequent KVGet
// calls on the same transaction but not to the store until Commit.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t == nil || t.manager == nil {
		return fmt.Errorf("state: txn not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	k := string(key)
	if _, exists := t.staged[k]; !exists {
		t.order = append(t.order, k)
	}
	t.staged[k] = encoded
	return nil
}

// Commit flushes every staged write as a single atomic batch, in the order
// the keys were first written.
func (t *Txn) Commit() error {
	if t == nil || t.manager == nil || t.manager.db == nil {
		return fmt.Errorf("state: txn not initialised")
	}
	if len(t.staged) == 0 {
		return nil
	}
	entries := make([]storage.Entry, 0, len(t.staged))
	for _, k := range t.order {
		entries = append(entries, storage.Entry{Key: []byte(k), Value: t.staged[k]})
	}
	if err := t.manager.db.WriteBatch(entries); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	t.staged = make(map[string][]byte)
	t.order = nil
	return nil
}
