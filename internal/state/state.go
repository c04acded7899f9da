package state

import (
	"sync"
	"time"
)

// State holds the bot's in-memory application state: the registered users,
// today's submission counters, and in-flight registration conversations.
// Everything here lives for the lifetime of the process; registered users
// are rehydrated from the spreadsheet at startup, the rest starts empty.
//
// discordgo invokes handlers on separate goroutines, so all access goes
// through the mutex.
type State struct {
	mu sync.Mutex

	// registered maps discord username -> real name.
	registered map[string]string

	// userIDs maps discord username -> discord user ID, learned when a
	// registered user talks to the bot. Needed to open DM channels.
	userIDs map[string]string

	// submissions maps discord username -> submission count for the
	// current day. Cleared by the daily reminder.
	submissions map[string]int

	// pending tracks users the bot has asked for their real name,
	// keyed by (username, channel).
	pending map[pendingKey]time.Time

	now func() time.Time
}

type pendingKey struct {
	username  string
	channelID string
}

// RegistrationTimeout is how long the bot waits for the real-name reply
// after a /register before the conversation expires.
const RegistrationTimeout = 60 * time.Second

// New creates an empty State.
func New() *State {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty State using the given clock for pending
// registration expiry. Tests use this to control time.
func NewWithClock(now func() time.Time) *State {
	return &State{
		registered:  make(map[string]string),
		userIDs:     make(map[string]string),
		submissions: make(map[string]int),
		pending:     make(map[pendingKey]time.Time),
		now:         now,
	}
}

// Register stores a user's real name. Returns false if the username is
// already registered; the stored name is not overwritten.
func (s *State) Register(username, realName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registered[username]; ok {
		return false
	}
	s.registered[username] = realName
	return true
}

// IsRegistered reports whether the username has registered.
func (s *State) IsRegistered(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registered[username]
	return ok
}

// RealName returns the stored real name for a registered username.
func (s *State) RealName(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.registered[username]
	return name, ok
}

// Registered returns a snapshot of all registered users (username -> real name).
func (s *State) Registered() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.registered))
	for u, n := range s.registered {
		out[u] = n
	}
	return out
}

// Rehydrate seeds the registered-users map from persisted rows without
// overwriting entries registered earlier in this process.
func (s *State) Rehydrate(users map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for u, n := range users {
		if _, ok := s.registered[u]; !ok {
			s.registered[u] = n
		}
	}
}

// SetUserID records the discord user ID for a username.
func (s *State) SetUserID(username, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIDs[username] = userID
}

// UserID returns the known discord user ID for a username, if any.
func (s *State) UserID(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userIDs[username]
	return id, ok
}

// IncrementSubmission bumps the user's counter for today and returns the
// new count.
func (s *State) IncrementSubmission(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[username]++
	return s.submissions[username]
}

// Submissions returns the user's submission count for today.
func (s *State) Submissions(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[username]
}

// HasSubmitted reports whether the user has submitted at least once today.
func (s *State) HasSubmitted(username string) bool {
	return s.Submissions(username) > 0
}

// ResetSubmissions clears all submission counters, starting a fresh day.
func (s *State) ResetSubmissions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = make(map[string]int)
}

// BeginRegistration marks that the bot is waiting for the user's real name
// in the given channel. A later message from the same user in the same
// channel completes the registration via TakePendingRegistration.
func (s *State) BeginRegistration(username, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pendingKey{username, channelID}] = s.now().Add(RegistrationTimeout)
}

// TakePendingRegistration consumes a pending registration for the user and
// channel. The second return value is false if no conversation was pending;
// expired reports whether a pending conversation existed but timed out.
func (s *State) TakePendingRegistration(username, channelID string) (ok, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey{username, channelID}
	deadline, found := s.pending[key]
	if !found {
		return false, false
	}
	delete(s.pending, key)
	if s.now().After(deadline) {
		return false, true
	}
	return true, false
}
