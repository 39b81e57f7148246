// Package roster holds the in-memory session store: every registered
// user keyed by hardware address, together with their live session flags.
// The scan loop, the forced-logout sweep and the web layer all read and
// mutate the same store; it is the single source of truth for "who is
// here right now". Durable state lives in the repository, and the store
// must always be reconstructible from it (open login records at startup).
package roster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"adsum/internal/domain"
)

// Store is a concurrency-safe roster keyed by canonical MAC address.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byID    map[string]string // user id -> MAC
}

type entry struct {
	user    domain.User
	session domain.Session
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		byID:    make(map[string]string),
	}
}

// Add registers a user. Both the MAC and the id must be unused.
func (s *Store) Add(user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[user.MAC]; exists {
		return fmt.Errorf("%w: mac %s", domain.ErrDuplicateUser, user.MAC)
	}
	if _, exists := s.byID[user.ID]; exists {
		return fmt.Errorf("%w: id %s", domain.ErrDuplicateUser, user.ID)
	}

	s.entries[user.MAC] = &entry{user: user}
	s.byID[user.ID] = user.MAC
	return nil
}

// Get returns a snapshot of the user with the given MAC.
func (s *Store) Get(mac string) (domain.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[mac]
	if !ok {
		return domain.Presence{}, false
	}
	return e.presence(), true
}

// GetByID returns a snapshot of the user with the given id.
func (s *Store) GetByID(id string) (domain.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mac, ok := s.byID[id]
	if !ok {
		return domain.Presence{}, false
	}
	return s.entries[mac].presence(), true
}

// All returns a snapshot of every registered user, sorted by name.
func (s *Store) All() []domain.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Presence, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.presence())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].MAC < out[j].MAC
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// MarkSeen records an observation of the given device. The first
// observation of a visit also stamps FirstSeen. Unknown MACs are a no-op.
func (s *Store) MarkSeen(mac string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[mac]
	if !ok {
		return false
	}
	if e.session.FirstSeen == nil {
		first := at
		e.session.FirstSeen = &first
	}
	last := at
	e.session.LastSeen = &last
	return true
}

// SetLoggedIn flips the session flag. Logging out clears the FirstSeen
// visit marker; LastSeen is kept for display. Unknown MACs are a no-op.
func (s *Store) SetLoggedIn(mac string, loggedIn bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[mac]
	if !ok {
		return false
	}
	e.session.LoggedIn = loggedIn
	if !loggedIn {
		e.session.FirstSeen = nil
	}
	return true
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// presence copies the entry into a caller-owned snapshot. Callers of the
// exported methods never see the live pointers.
func (e *entry) presence() domain.Presence {
	p := domain.Presence{User: e.user, Session: e.session}
	if e.session.FirstSeen != nil {
		first := *e.session.FirstSeen
		p.FirstSeen = &first
	}
	if e.session.LastSeen != nil {
		last := *e.session.LastSeen
		p.LastSeen = &last
	}
	return p
}
