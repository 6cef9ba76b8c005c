package lifecycle

import (
	"strings"
	"sync"
	"time"

	"letssora/internal/domain"
)

// Sessions holds one controller per (owner, session id), created lazily.
// Controllers share Deps and Options; only the owner differs. Sessions that
// are not running are evicted once Options.SessionTTL passes without a state
// change, and Options.MaxOwnerSessions bounds how many one owner may hold.
type Sessions struct {
	deps Deps
	opts Options
	now  func() time.Time

	mu          sync.Mutex
	controllers map[sessionKey]*Controller
}

type sessionKey struct {
	owner string
	id    string
}

func NewSessions(deps Deps, opts Options) *Sessions {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{deps: deps, opts: opts, now: now, controllers: map[sessionKey]*Controller{}}
}

// Get returns an existing controller. An expired session is evicted and
// reported missing.
func (s *Sessions) Get(owner, id string) (*Controller, bool) {
	key := sessionKey{owner: owner, id: strings.TrimSpace(id)}
	s.mu.Lock()
	c, ok := s.controllers[key]
	if ok && s.expired(c.Snapshot(), s.now()) {
		delete(s.controllers, key)
		ok = false
	}
	s.mu.Unlock()
	if c != nil && !ok {
		c.Reset()
		return nil, false
	}
	return c, ok
}

// GetOrCreate returns the session's controller, creating an idle one first.
// It fails with domain.ErrTooManySessions when the owner is at the cap and
// every one of their sessions is running.
func (s *Sessions) GetOrCreate(owner, id string) (*Controller, error) {
	key := sessionKey{owner: owner, id: strings.TrimSpace(id)}
	s.mu.Lock()
	evicted := s.sweepLocked()
	defer func() {
		s.mu.Unlock()
		for _, c := range evicted {
			c.Reset()
		}
	}()
	if c, ok := s.controllers[key]; ok {
		return c, nil
	}
	if limit := s.opts.MaxOwnerSessions; limit > 0 && s.ownedLocked(owner) >= limit {
		victim, ok := s.oldestIdleLocked(owner)
		if !ok {
			return nil, domain.ErrTooManySessions
		}
		evicted = append(evicted, s.controllers[victim])
		delete(s.controllers, victim)
	}
	opts := s.opts
	opts.OwnerID = owner
	c := New(s.deps, opts)
	s.controllers[key] = c
	return c, nil
}

func (s *Sessions) expired(snap Snapshot, now time.Time) bool {
	return s.opts.SessionTTL > 0 && !snap.State.Active() && now.Sub(snap.UpdatedAt) >= s.opts.SessionTTL
}

// sweepLocked drops expired sessions and returns them for a reset outside
// the lock. Callers hold mu.
func (s *Sessions) sweepLocked() []*Controller {
	if s.opts.SessionTTL <= 0 {
		return nil
	}
	now := s.now()
	var evicted []*Controller
	for key, c := range s.controllers {
		if s.expired(c.Snapshot(), now) {
			evicted = append(evicted, c)
			delete(s.controllers, key)
		}
	}
	return evicted
}

func (s *Sessions) ownedLocked(owner string) int {
	n := 0
	for key := range s.controllers {
		if key.owner == owner {
			n++
		}
	}
	return n
}

// oldestIdleLocked picks the owner's least recently updated session that is
// not running. Callers hold mu.
func (s *Sessions) oldestIdleLocked(owner string) (sessionKey, bool) {
	var (
		victim sessionKey
		oldest time.Time
		found  bool
	)
	for key, c := range s.controllers {
		if key.owner != owner {
			continue
		}
		snap := c.Snapshot()
		if snap.State.Active() {
			continue
		}
		if !found || snap.UpdatedAt.Before(oldest) {
			victim, oldest, found = key, snap.UpdatedAt, true
		}
	}
	return victim, found
}

// Remove resets and forgets a session. It reports whether one existed.
func (s *Sessions) Remove(owner, id string) bool {
	key := sessionKey{owner: owner, id: strings.TrimSpace(id)}
	s.mu.Lock()
	c, ok := s.controllers[key]
	delete(s.controllers, key)
	s.mu.Unlock()
	if ok {
		c.Reset()
	}
	return ok
}

// ResetAll abandons every in-flight job. Used on shutdown.
func (s *Sessions) ResetAll() {
	s.mu.Lock()
	all := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		all = append(all, c)
	}
	s.mu.Unlock()
	for _, c := range all {
		c.Reset()
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}
