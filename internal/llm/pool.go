package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// PoolState is the persisted form of a credential pool.
type PoolState struct {
	Keys  []string `json:"keys"`
	Index int      `json:"index"`
}

// PoolStore persists the pool between restarts.
type PoolStore interface {
	Load(ctx context.Context) (PoolState, error)
	Save(ctx context.Context, st PoolState) error
}

// Pool is an ordered list of API keys with a cursor.  The cursor moves
// circularly; persisting it lets a restarted process resume on the key that
// last worked.
type Pool struct {
	mu    sync.Mutex
	keys  []string
	index int
	store PoolStore
	log   *zap.Logger
}

// NewPool loads the pool from store.  Non-empty configured keys take
// precedence over stored ones and are written back; the stored cursor is kept
// if it is still in range.
func NewPool(ctx context.Context, store PoolStore, configured []string, log *zap.Logger) (*Pool, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{store: store, log: log}

	st, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	keys := compact(configured)
	if len(keys) == 0 {
		keys = compact(st.Keys)
	}
	p.keys = keys
	if st.Index >= 0 && st.Index < len(keys) {
		p.index = st.Index
	}
	if len(configured) > 0 {
		if err := store.Save(ctx, p.stateLocked()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func compact(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (p *Pool) stateLocked() PoolState {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return PoolState{Keys: keys, Index: p.index}
}

// Size returns the number of keys.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the key under the cursor and its index.
func (p *Pool) Current() (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", 0, ErrEmptyPool
	}
	return p.keys[p.index], p.index, nil
}

// Advance moves the cursor to the next key, wrapping around, and persists the
// new position.  A persistence failure is logged; the in-memory cursor still
// moves.
func (p *Pool) Advance(ctx context.Context) int {
	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return 0
	}
	p.index = (p.index + 1) % len(p.keys)
	st := p.stateLocked()
	p.mu.Unlock()

	if err := p.store.Save(ctx, st); err != nil {
		p.log.Warn("persist key cursor", zap.Error(err))
	}
	return st.Index
}

// SetKeys replaces the pool contents and resets the cursor.
func (p *Pool) SetKeys(ctx context.Context, keys []string) error {
	p.mu.Lock()
	p.keys = compact(keys)
	p.index = 0
	st := p.stateLocked()
	p.mu.Unlock()
	return p.store.Save(ctx, st)
}

// Status reports the pool size and cursor without exposing the keys.
func (p *Pool) Status() (size, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys), p.index
}

// MemoryStore keeps pool state in process memory.
type MemoryStore struct {
	mu sync.Mutex
	st PoolState
}

// NewMemoryStore returns a store that keeps the pool state in memory.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load returns the last saved state.
func (m *MemoryStore) Load(context.Context) (PoolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.st.Keys))
	copy(keys, m.st.Keys)
	return PoolState{Keys: keys, Index: m.st.Index}, nil
}

// Save replaces the saved state.
func (m *MemoryStore) Save(_ context.Context, st PoolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	return nil
}
