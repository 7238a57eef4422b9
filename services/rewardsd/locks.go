package rewardsd

import (
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type lockClass uint8

// Lock classes in acquisition order. Holders cover pool vaults as well as
// external source and destination holders, so a vault is always locked under
// one key no matter which role it plays in an operation.
const (
	lockPool lockClass = iota
	lockHolder
	lockEntry
)

type lockKey struct {
	class  lockClass
	id     string
	shared bool
}

func poolLock(addr solana.PublicKey, shared bool) lockKey {
	return lockKey{class: lockPool, id: string(addr[:]), shared: shared}
}

func holderLock(addr solana.PublicKey) lockKey {
	return lockKey{class: lockHolder, id: string(addr[:])}
}

func entryLock(pool, user solana.PublicKey) lockKey {
	return lockKey{class: lockEntry, id: string(pool[:]) + string(user[:])}
}

type lockEntryRef struct {
	mu   sync.RWMutex
	refs int
}

type heldLock struct {
	ref *lockEntryRef
	key lockKey
}

// lockTable hands out per-record locks. Records that nobody holds are dropped
// from the table so it only grows with concurrency, not with ledger size.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockClass]map[string]*lockEntryRef
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[lockClass]map[string]*lockEntryRef)}
}

// acquire locks every key in the global order (class, then id) and returns
// the matching release function. Duplicate keys are locked once; a duplicate
// requesting exclusive access upgrades the shared request.
func (t *lockTable) acquire(keys ...lockKey) func() {
	ordered := normalizeKeys(keys)
	held := make([]heldLock, 0, len(ordered))
	for _, key := range ordered {
		ref := t.ref(key)
		if key.shared {
			ref.mu.RLock()
		} else {
			ref.mu.Lock()
		}
		held = append(held, heldLock{ref: ref, key: key})
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			if held[i].key.shared {
				held[i].ref.mu.RUnlock()
			} else {
				held[i].ref.mu.Unlock()
			}
			t.unref(held[i].key)
		}
	}
}

func (t *lockTable) ref(key lockKey) *lockEntryRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	byID, ok := t.locks[key.class]
	if !ok {
		byID = make(map[string]*lockEntryRef)
		t.locks[key.class] = byID
	}
	ref, ok := byID[key.id]
	if !ok {
		ref = &lockEntryRef{}
		byID[key.id] = ref
	}
	ref.refs++
	return ref
}

func (t *lockTable) unref(key lockKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byID := t.locks[key.class]
	ref, ok := byID[key.id]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs <= 0 {
		delete(byID, key.id)
	}
}

// size reports the number of live lock records.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byID := range t.locks {
		n += len(byID)
	}
	return n
}

func normalizeKeys(keys []lockKey) []lockKey {
	merged := make(map[lockKey]lockKey, len(keys))
	for _, key := range keys {
		id := lockKey{class: key.class, id: key.id}
		if existing, ok := merged[id]; ok {
			existing.shared = existing.shared && key.shared
			merged[id] = existing
			continue
		}
		merged[id] = key
	}
	out := make([]lockKey, 0, len(merged))
	for _, key := range merged {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].class != out[j].class {
			return out[i].class < out[j].class
		}
		return out[i].id < out[j].id
	})
	return out
}
