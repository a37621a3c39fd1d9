// Package session implements the Session State Store (C6): an in-memory,
// concurrent-safe record of WorkflowState keyed by query ID, with push
// notification to subscribers. Not durable, not cross-process — the
// Workflow Engine is the only writer.
package session

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

const defaultMaxEntries = 10000

// Subscriber receives a push notification for every published snapshot of
// the query it subscribed to, in publication order.
type Subscriber func(snapshot datatypes.WorkflowState)

// Store holds one WorkflowState snapshot per in-flight or completed query
// and fans out updates to subscribers. Bounded by a least-recently-put LRU
// eviction so a long-running process does not grow without limit, adapted
// from the teacher's ttl package eviction idiom.
type Store struct {
	mu          sync.RWMutex
	clock       Clock
	maxEntries  int
	entries     map[string]*list.Element
	order       *list.List // front = most recently put
	subscribers map[string][]Subscriber
}

type entry struct {
	queryID  string
	snapshot datatypes.WorkflowState
}

// New builds a Store bounded to maxEntries snapshots. A maxEntries of zero
// or less uses the documented default of 10,000.
func New(clock Clock, maxEntries int) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Store{
		clock:       clock,
		maxEntries:  maxEntries,
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		subscribers: make(map[string][]Subscriber),
	}
}

// Put records snapshot as the current state for its QueryID and notifies
// every subscriber registered for that query, in order. Notification
// happens synchronously on the caller's goroutine, matching the engine's
// single-threaded-per-run contract: the engine never proceeds to the next
// node until Put returns.
func (s *Store) Put(snapshot datatypes.WorkflowState) {
	s.mu.Lock()
	if el, ok := s.entries[snapshot.QueryID]; ok {
		el.Value.(*entry).snapshot = snapshot
		s.order.MoveToFront(el)
	} else {
		el := s.order.PushFront(&entry{queryID: snapshot.QueryID, snapshot: snapshot})
		s.entries[snapshot.QueryID] = el
		s.evictIfNeeded()
	}
	subs := append([]Subscriber(nil), s.subscribers[snapshot.QueryID]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

// evictIfNeeded drops the least-recently-put entry once the store exceeds
// maxEntries. Callers must hold s.mu.
func (s *Store) evictIfNeeded() {
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			return
		}
		e := oldest.Value.(*entry)
		s.order.Remove(oldest)
		delete(s.entries, e.queryID)
		delete(s.subscribers, e.queryID)
		slog.Warn("session store evicted snapshot past capacity",
			"query_id", e.queryID,
			"max_entries", s.maxEntries,
		)
	}
}

// Get returns the current snapshot for queryID, if any.
func (s *Store) Get(queryID string) (datatypes.WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.entries[queryID]
	if !ok {
		return datatypes.WorkflowState{}, false
	}
	return el.Value.(*entry).snapshot, true
}

// Subscribe registers callback to be invoked on every subsequent Put for
// queryID. It does not replay the current snapshot; callers that need the
// current state should call Get first.
func (s *Store) Subscribe(queryID string, callback Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[queryID] = append(s.subscribers[queryID], callback)
}
