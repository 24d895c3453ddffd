package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danabrams/codegen/internal/kv"
)

// StorageKey is the kv key holding the JSON map of id to Session.
const StorageKey = "jscodegen-chats"

// Store is the keyed collection of sessions. Mutations are in memory until
// Save writes the whole collection back to the kv store.
type Store struct {
	kv       kv.Store
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store backed by s. Call Load to read persisted
// sessions.
func NewStore(s kv.Store) *Store {
	return &Store{
		kv:       s,
		sessions: make(map[string]*Session),
	}
}

// Load replaces the in-memory collection with the persisted one. A missing
// entry yields an empty collection.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		raw = "{}"
	} else if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	sessions := make(map[string]*Session)
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return fmt.Errorf("unmarshal sessions: %w", err)
	}
	for id, sess := range sessions {
		if sess == nil {
			delete(sessions, id)
			continue
		}
		if sess.ID == "" {
			sess.ID = id
		}
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}

// Save persists the whole collection.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	data, err := json.Marshal(s.sessions)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Put inserts or replaces a session.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess.Clone()
}

// Update applies fn to the stored session in place.
func (s *Store) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(sess)
	return nil
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// List returns copies of all sessions, most recently used first. Ties are
// ordered by id.
func (s *Store) List() []*Session {
	s.mu.RLock()
	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastUsed.Equal(result[j].LastUsed) {
			return result[i].LastUsed.After(result[j].LastUsed)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Recent returns at most n sessions in List order.
func (s *Store) Recent(n int) []*Session {
	list := s.List()
	if len(list) > n {
		list = list[:n]
	}
	return list
}

// MostRecent returns the session with the greatest LastUsed.
func (s *Store) MostRecent() (*Session, bool) {
	recent := s.Recent(1)
	if len(recent) == 0 {
		return nil, false
	}
	return recent[0], true
}
