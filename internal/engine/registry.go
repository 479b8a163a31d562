package engine

import (
	"sync"
	"time"

	"github.com/max-mines/epic-bot/internal/model"
)

// SessionRegistry holds the in-flight conversations, keyed by thread id.
// It is the single source of truth for which threads are active; at most
// one session exists per id.
type SessionRegistry interface {
	Get(id string) (*model.Session, bool)
	Put(session *model.Session)
	Delete(id string)

	// Stale returns the ids of sessions whose last activity is older than
	// the cutoff.
	Stale(cutoff time.Time) []string
}

// MemoryRegistry is the default in-process SessionRegistry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*model.Session)}
}

func (r *MemoryRegistry) Get(id string) (*model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *MemoryRegistry) Put(session *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
}

func (r *MemoryRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *MemoryRegistry) Stale(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// keyedMutex serializes handling per session id: two near-simultaneous
// replies in the same thread must not interleave, while different threads
// proceed concurrently. Entries are not reclaimed; the key space is bounded
// by thread ids seen per process lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
