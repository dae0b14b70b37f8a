package application

import (
	"sync"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/google/uuid"
)

// SessionStore keeps in-flight sessions for the life of the process.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[domain.ChatID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[domain.ChatID]*domain.Session{}}
}

// Create replaces any existing session for the chat.
func (s *SessionStore) Create(chatID domain.ChatID, now time.Time) *domain.Session {
	session := &domain.Session{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		Step:         domain.StepAwaitingName,
		StartedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	s.sessions[chatID] = session
	s.mu.Unlock()

	return session
}

func (s *SessionStore) Get(chatID domain.ChatID) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[chatID]
	return session, ok
}

func (s *SessionStore) Delete(chatID domain.ChatID) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
