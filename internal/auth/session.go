package auth

import (
	"sort"
	"sync"
	"time"
)

type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
)

type Event struct {
	Kind   EventKind
	UserID string
	At     time.Time
}

// Session tracks signed-in users and notifies subscribers on sign-in/out transitions.
type Session struct {
	mu     sync.Mutex
	users  map[string]time.Time
	subs   map[int]func(Event)
	nextID int
}

func NewSession() *Session {
	return &Session{users: make(map[string]time.Time), subs: make(map[int]func(Event))}
}

// SignIn is idempotent; only the first call for uid notifies subscribers.
func (s *Session) SignIn(uid string) bool {
	if uid == "" {
		return false
	}
	s.mu.Lock()
	if _, ok := s.users[uid]; ok {
		s.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	s.users[uid] = now
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, Event{Kind: SignedIn, UserID: uid, At: now})
	return true
}

func (s *Session) SignOut(uid string) bool {
	s.mu.Lock()
	if _, ok := s.users[uid]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.users, uid)
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, Event{Kind: SignedOut, UserID: uid, At: time.Now().UTC()})
	return true
}

func (s *Session) IsSignedIn(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[uid]
	return ok
}

// Active returns signed-in user ids, sorted.
func (s *Session) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for uid := range s.users {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn; the returned func removes it.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// must be called with mu held
func (s *Session) snapshot() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
