package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"adsum/internal/domain"
	"adsum/internal/roster"
)

// maxConcurrentTransitions bounds the per-user goroutines a bulk logout
// dispatches at once.
const maxConcurrentTransitions = 8

// Gateway is the narrow persistence contract the presence service needs.
// *sqlite.Repository satisfies it.
type Gateway interface {
	InsertUser(ctx context.Context, user *domain.User) error
	AllUsers(ctx context.Context) ([]*domain.User, error)
	InsertLogin(ctx context.Context, userID string, at time.Time) error
	CloseLogin(ctx context.Context, userID string, at time.Time) (int64, error)
	CloseAllLogins(ctx context.Context, at time.Time) (int64, error)
	AllOpenLogins(ctx context.Context) ([]*domain.LoginRecord, error)
	AggregateHours(ctx context.Context, now time.Time) ([]domain.UserHours, error)
}

// PresenceService owns user registration and the login/logout transition
// protocol over the session store and the persistence gateway.
type PresenceService struct {
	store    *roster.Store
	gateway  Gateway
	eventBus *EventBus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPresenceService creates a new presence service.
func NewPresenceService(store *roster.Store, gateway Gateway, eventBus *EventBus) *PresenceService {
	return &PresenceService{
		store:    store,
		gateway:  gateway,
		eventBus: eventBus,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockUser serializes transitions for one MAC so that a scan-driven and
// a manual transition for the same user never interleave. The returned
// func releases the lock.
func (s *PresenceService) lockUser(mac string) func() {
	s.mu.Lock()
	l, ok := s.locks[mac]
	if !ok {
		l = &sync.Mutex{}
		s.locks[mac] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Restore rebuilds the session store from persistence: every registered
// user, with open login records replayed as live sessions. last_seen is
// seeded from the record's login time so debounce and forced-logout
// comparisons have a sane baseline before the first scan.
func (s *PresenceService) Restore(ctx context.Context) error {
	users, err := s.gateway.AllUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		if err := s.store.Add(*u); err != nil {
			return fmt.Errorf("restore user %s: %w", u.ID, err)
		}
	}

	open, err := s.gateway.AllOpenLogins(ctx)
	if err != nil {
		return fmt.Errorf("load open logins: %w", err)
	}

	restored := 0
	for _, rec := range open {
		p, ok := s.store.GetByID(rec.UserID)
		if !ok {
			log.Printf("Open login %d references unknown user %s, skipping", rec.LoginID, rec.UserID)
			continue
		}
		if p.LoggedIn {
			// Duplicate-open rows; the newest record already won.
			continue
		}
		s.store.MarkSeen(p.MAC, rec.LoginTime)
		s.store.SetLoggedIn(p.MAC, true)
		restored++
	}

	log.Printf("Restored %d users, %d open sessions", len(users), restored)
	return nil
}

// CreateUser registers a new user. The registry write goes first so its
// uniqueness constraints arbitrate concurrent registrations; the session
// store is updated once the row is durable.
func (s *PresenceService) CreateUser(ctx context.Context, user *domain.User) error {
	defer s.lockUser(user.MAC)()

	if err := s.gateway.InsertUser(ctx, user); err != nil {
		return err
	}
	if err := s.store.Add(*user); err != nil {
		log.Printf("Cache add after insert failed for %s: %v", user.ID, err)
		return err
	}

	log.Printf("Registered %s (%s, %s)", user.Name, user.Role, user.MAC)
	s.eventBus.Publish(Event{Type: EventUserCreated, Payload: s.snapshot(user.MAC)})
	return nil
}

// User returns the presence snapshot for one MAC.
func (s *PresenceService) User(mac string) (domain.Presence, error) {
	p, ok := s.store.Get(mac)
	if !ok {
		return domain.Presence{}, fmt.Errorf("%w: mac %s", domain.ErrUnknownUser, mac)
	}
	return p, nil
}

// UserByID returns the presence snapshot for one user id.
func (s *PresenceService) UserByID(id string) (domain.Presence, error) {
	p, ok := s.store.GetByID(id)
	if !ok {
		return domain.Presence{}, fmt.Errorf("%w: id %s", domain.ErrUnknownUser, id)
	}
	return p, nil
}

// Users returns snapshots of every registered user, sorted by name.
func (s *PresenceService) Users() []domain.Presence {
	return s.store.All()
}

// MarkSeen records a device observation. Reports false for unknown MACs.
func (s *PresenceService) MarkSeen(mac string, at time.Time) bool {
	return s.store.MarkSeen(mac, at)
}

// Login opens a session for the user with the given MAC. An already
// open session is a warning no-op reported as ErrAlreadyLoggedIn. If
// the durable record cannot be written, the in-memory flip is reverted
// and the error returned.
func (s *PresenceService) Login(ctx context.Context, mac string, at time.Time) error {
	defer s.lockUser(mac)()

	p, ok := s.store.Get(mac)
	if !ok {
		return fmt.Errorf("%w: mac %s", domain.ErrUnknownUser, mac)
	}
	if p.LoggedIn {
		log.Printf("Login for %s skipped: already logged in", p.Name)
		return fmt.Errorf("%w: %s", domain.ErrAlreadyLoggedIn, p.Name)
	}

	s.store.MarkSeen(mac, at)
	s.store.SetLoggedIn(mac, true)

	if err := s.gateway.InsertLogin(ctx, p.ID, at); err != nil {
		if errors.Is(err, domain.ErrAlreadyLoggedIn) {
			// The registry had an open record the cache did not know
			// about. The durable state wins; keep the session open.
			log.Printf("Login for %s: cache thought logged out, registry disagrees", p.Name)
			return fmt.Errorf("%w: %s", domain.ErrAlreadyLoggedIn, p.Name)
		}
		s.store.SetLoggedIn(mac, false)
		return fmt.Errorf("persist login for %s: %w", p.Name, err)
	}

	log.Printf("%s logged in", p.Name)
	s.eventBus.Publish(Event{Type: EventUserLogin, Payload: s.snapshot(mac)})
	return nil
}

// LoginByID opens a session for the user with the given id.
func (s *PresenceService) LoginByID(ctx context.Context, id string, at time.Time) error {
	p, ok := s.store.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: id %s", domain.ErrUnknownUser, id)
	}
	return s.Login(ctx, p.MAC, at)
}

// Logout closes the session for the user with the given MAC. A session
// that is not open is a warning no-op reported as ErrNotLoggedIn. If the
// durable record cannot be closed, the in-memory flip is reverted and
// the error returned.
func (s *PresenceService) Logout(ctx context.Context, mac string, at time.Time) error {
	defer s.lockUser(mac)()

	p, ok := s.store.Get(mac)
	if !ok {
		return fmt.Errorf("%w: mac %s", domain.ErrUnknownUser, mac)
	}
	if !p.LoggedIn {
		log.Printf("Logout for %s skipped: not logged in", p.Name)
		return fmt.Errorf("%w: %s", domain.ErrNotLoggedIn, p.Name)
	}

	s.store.SetLoggedIn(mac, false)

	n, err := s.gateway.CloseLogin(ctx, p.ID, at)
	if err != nil {
		s.store.SetLoggedIn(mac, true)
		return fmt.Errorf("persist logout for %s: %w", p.Name, err)
	}
	if n == 0 {
		log.Printf("Logout for %s: cache thought logged in but no open record found", p.Name)
	}

	log.Printf("%s logged out", p.Name)
	s.eventBus.Publish(Event{Type: EventUserLogout, Payload: s.snapshot(mac)})
	return nil
}

// LogoutByID closes the session for the user with the given id.
func (s *PresenceService) LogoutByID(ctx context.Context, id string, at time.Time) error {
	p, ok := s.store.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: id %s", domain.ErrUnknownUser, id)
	}
	return s.Logout(ctx, p.MAC, at)
}

// LogoutAll closes every open session: a per-user logout transition for
// each logged-in roster member, then a bulk close for any records the
// roster no longer knows about. Per-user failures do not stop the
// sweep; they are joined into the returned error. Returns the number of
// sessions closed through the roster.
func (s *PresenceService) LogoutAll(ctx context.Context, at time.Time) (int, error) {
	var (
		mu     sync.Mutex
		closed int
		errs   []error
	)

	p := pool.New().WithMaxGoroutines(maxConcurrentTransitions)
	for _, u := range s.store.All() {
		if !u.LoggedIn {
			continue
		}
		p.Go(func() {
			err := s.Logout(ctx, u.MAC, at)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				closed++
			case errors.Is(err, domain.ErrNotLoggedIn):
				// Lost a race with another logout; nothing left to do.
			default:
				errs = append(errs, fmt.Errorf("%s: %w", u.Name, err))
			}
		})
	}
	p.Wait()

	// Records orphaned from the roster still have to be closed.
	stray, err := s.gateway.CloseAllLogins(ctx, at)
	if err != nil {
		errs = append(errs, fmt.Errorf("close stray records: %w", err))
	} else if stray > 0 {
		log.Printf("Closed %d login records with no live session", stray)
	}

	return closed, errors.Join(errs...)
}

// TotalHours reports each user's attendance total in hours. Open
// sessions count up to now.
func (s *PresenceService) TotalHours(ctx context.Context, now time.Time) ([]domain.UserHours, error) {
	return s.gateway.AggregateHours(ctx, now)
}

// snapshot returns the current presence view for event payloads.
func (s *PresenceService) snapshot(mac string) *domain.Presence {
	if p, ok := s.store.Get(mac); ok {
		return &p
	}
	return nil
}
