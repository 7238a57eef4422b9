package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"rewardvault/storage"
)

// Manager stages writes on top of a storage.Database. Reads observe the staged
// writes first. Nothing reaches the database until Commit, which applies every
// staged write in one batch; Discard drops them. A Manager is meant to live
// for a single ledger operation.
type Manager struct {
	db storage.Database

	mu      sync.Mutex
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager staging writes over db.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[string(key)] = encoded
	delete(m.deleted, string(key))
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, string(key))
	m.deleted[string(key)] = struct{}{}
	return nil
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	if value, ok := m.pending[string(key)]; ok {
		m.mu.Unlock()
		return value, true, nil
	}
	if _, ok := m.deleted[string(key)]; ok {
		m.mu.Unlock()
		return nil, false, nil
	}
	m.mu.Unlock()

	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// KVIterate walks the raw values under prefix in ascending key order with
// staged writes merged over the committed ones. fn returning false stops the
// walk.
func (m *Manager) KVIterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	merged := make(map[string][]byte)
	if err := m.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	m.mu.Lock()
	for key := range m.deleted {
		delete(merged, key)
	}
	for key, value := range m.pending {
		if bytes.HasPrefix([]byte(key), prefix) {
			merged[key] = value
		}
	}
	m.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cont, err := fn([]byte(key), merged[key])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func decode(data []byte, out interface{}) error {
	return rlp.DecodeBytes(data, out)
}

// Dirty reports the number of staged writes.
func (m *Manager) Dirty() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) + len(m.deleted)
}

// Commit applies all staged writes atomically and resets the overlay.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := storage.NewBatch()
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		batch.Put([]byte(key), m.pending[key])
	}
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}
