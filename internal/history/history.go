package history

import "sync"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role    Role
	Content string
}

// UserTurn builds a turn authored by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a turn authored by the model.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

type conversation struct {
	// exchange serializes whole relay exchanges for one user.
	exchange sync.Mutex

	mu    sync.Mutex
	turns []Turn
}

// Store maps a user identity to that user's ordered conversation history.
// A user without an entry has an empty history. The zero value is not usable;
// call NewStore.
type Store struct {
	mu            sync.Mutex
	conversations map[int64]*conversation
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{conversations: map[int64]*conversation{}}
}

// lookup returns the user's conversation, or nil when none exists.
func (s *Store) lookup(userID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[userID]
}

// getOrCreate returns the user's conversation, creating an empty one on first
// use. Creation is not an error path.
func (s *Store) getOrCreate(userID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[userID]
	if !ok {
		c = &conversation{}
		s.conversations[userID] = c
	}
	return c
}

// Get returns a copy of the user's turns in conversation order.
func (s *Store) Get(userID int64) []Turn {
	c := s.lookup(userID)
	if c == nil {
		return []Turn{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Append adds a turn to the end of the user's history.
func (s *Store) Append(userID int64, turn Turn) {
	c := s.getOrCreate(userID)
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
}

// Clear resets the user's history to empty. Clearing an unknown user is a no-op.
func (s *Store) Clear(userID int64) {
	c := s.lookup(userID)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}

// Len returns the number of turns stored for the user.
func (s *Store) Len(userID int64) int {
	c := s.lookup(userID)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Users returns how many users have an entry.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Lock acquires the user's exchange lock and returns its release function.
// Holders for different users never contend.
func (s *Store) Lock(userID int64) (unlock func()) {
	c := s.getOrCreate(userID)
	c.exchange.Lock()
	return c.exchange.Unlock
}
