package ratelimit

import "sync"

// Scope identifies which of the three independent counter maps a key belongs to.
type Scope uint8

const (
	ScopeUser Scope = iota
	ScopeBroadcaster
	ScopeTrigger
)

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeBroadcaster:
		return "broadcaster"
	case ScopeTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

type Key struct {
	Scope  Scope
	UserID string
	Target string
}

func UserKey(userID string) Key {
	return Key{Scope: ScopeUser, UserID: userID}
}

func BroadcasterKey(userID, broadcasterID string) Key {
	return Key{Scope: ScopeBroadcaster, UserID: userID, Target: broadcasterID}
}

func TriggerKey(userID, triggerID string) Key {
	return Key{Scope: ScopeTrigger, UserID: userID, Target: triggerID}
}

// State counts successful fires per key. A ceiling <= 0 means unlimited.
type State struct {
	mu     sync.Mutex
	counts map[Key]int
}

func NewState() *State {
	return &State{counts: make(map[Key]int)}
}

// TryConsume increments the counter for key if it is below ceiling and reports
// whether it did. An exhausted key is left untouched.
func (s *State) TryConsume(key Key, ceiling int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !under(s.counts[key], ceiling) {
		return false
	}
	s.counts[key]++
	return true
}

// Allow reports whether key is still below ceiling without consuming anything.
func (s *State) Allow(key Key, ceiling int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return under(s.counts[key], ceiling)
}

func (s *State) Count(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Reset clears every counter.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[Key]int)
}

// ResetUser clears every counter that belongs to userID, across all scopes.
func (s *State) ResetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.counts {
		if key.UserID == userID {
			delete(s.counts, key)
		}
	}
}

func under(count, ceiling int) bool {
	return ceiling <= 0 || count < ceiling
}
