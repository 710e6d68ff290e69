package repo

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/handbook-assistant/server/internal/agent/model"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const defaultMaxThreads = 4096

// MemoryStore keeps conversation state in process memory.
//
// The store mutex only guards the index; each thread has its own mutex so
// merges on different threads never contend. Idle threads are evicted after
// ttl, and the least recently used thread is evicted once maxThreads is exceeded.
//
// Lock order is store then entry. Eviction takes the entry lock, so a merge
// that holds it either lands before the eviction or sees the entry marked
// evicted and retries against a fresh one.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxThreads int

	lru *list.List               // front=MRU
	m   map[string]*list.Element // thread id -> element(Value=*memEntry)

	now func() time.Time
}

type memEntry struct {
	mu       sync.Mutex
	id       string
	state    *model.ConversationState
	lastUsed time.Time
	evicted  bool // guarded by mu
}

// NewMemoryStore creates an in-memory store. A ttl of zero disables idle expiry.
func NewMemoryStore(ttl time.Duration, maxThreads int) *MemoryStore {
	if maxThreads <= 0 {
		maxThreads = defaultMaxThreads
	}
	return &MemoryStore{
		ttl:        ttl,
		maxThreads: maxThreads,
		lru:        list.New(),
		m:          map[string]*list.Element{},
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, threadID string) (*model.ConversationState, error) {
	e := s.entry(threadID, false)
	if e == nil {
		return model.NewConversationState(threadID), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

func (s *MemoryStore) Merge(ctx context.Context, threadID string, update model.Update) (*model.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		e := s.entry(threadID, true)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		e.state.Apply(update)
		out := e.state.Clone()
		e.mu.Unlock()
		return out, nil
	}
}

func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el := s.m[threadID]; el != nil {
		s.deleteElemLocked(el)
	}
	return nil
}

// Len returns the number of live threads.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(s.now())
	return len(s.m)
}

// entry looks up a thread and marks it as used, creating it when create is set.
func (s *MemoryStore) entry(threadID string, create bool) *memEntry {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked(now)

	if el := s.m[threadID]; el != nil {
		e := el.Value.(*memEntry)
		e.lastUsed = now
		s.lru.MoveToFront(el)
		return e
	}
	if !create {
		return nil
	}

	e := &memEntry{id: threadID, state: model.NewConversationState(threadID), lastUsed: now}
	s.m[threadID] = s.lru.PushFront(e)
	s.evictOverLimitLocked()
	return e
}

func (s *MemoryStore) evictExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for el := s.lru.Back(); el != nil; {
		e := el.Value.(*memEntry)
		if now.Sub(e.lastUsed) < s.ttl {
			return
		}
		prev := el.Prev()
		logx.Debug().Str("thread_id", e.id).Dur("ttl", s.ttl).Msg("evicting idle conversation")
		s.deleteElemLocked(el)
		el = prev
	}
}

func (s *MemoryStore) evictOverLimitLocked() {
	for len(s.m) > s.maxThreads {
		el := s.lru.Back()
		if el == nil {
			return
		}
		logx.Debug().Str("thread_id", el.Value.(*memEntry).id).Int("max_threads", s.maxThreads).Msg("evicting least recently used conversation")
		s.deleteElemLocked(el)
	}
}

func (s *MemoryStore) deleteElemLocked(el *list.Element) {
	e := el.Value.(*memEntry)
	delete(s.m, e.id)
	s.lru.Remove(el)
	e.mu.Lock()
	e.evicted = true
	e.mu.Unlock()
}

var _ model.ConversationStore = (*MemoryStore)(nil)
