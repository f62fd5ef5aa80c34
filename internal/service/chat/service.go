package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voralis/skycast/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session busy")
)

// Service encapsulates conversation state management. Sessions are
// held in memory; transcripts are append-only and strictly ordered.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	inTurn   map[string]bool
}

// NewService bootstraps the in-memory chat service suitable for early iterations.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		inTurn:   make(map[string]bool),
	}
}

// CreateSession provisions an anonymous session with a fresh identifier.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// GetOrCreateSession retrieves a session, materializing it on first
// contact with a caller-supplied identifier.
func (s *Service) GetOrCreateSession(_ context.Context, sessionID string) (chat.Session, error) {
	if sessionID == "" {
		return chat.Session{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}

	session := chat.Session{
		ID:        sessionID,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// ResetSession allocates a fresh empty session to replace the old one.
// The old transcript stays in storage but is no longer reachable
// through the new identifier.
func (s *Service) ResetSession(ctx context.Context, _ string) (chat.Session, error) {
	return s.CreateSession(ctx)
}

// AppendMessage appends a message to the session history. Messages are
// never edited or removed afterwards.
func (s *Service) AppendMessage(_ context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// BeginTurn claims the single-writer slot for a session. A second turn
// arriving while one is in flight gets ErrSessionBusy instead of
// interleaving with it. Turns on different sessions proceed in parallel.
func (s *Service) BeginTurn(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	if s.inTurn[sessionID] {
		return ErrSessionBusy
	}
	s.inTurn[sessionID] = true
	return nil
}

// EndTurn releases the turn slot claimed by BeginTurn.
func (s *Service) EndTurn(sessionID string) {
	s.mu.Lock()
	delete(s.inTurn, sessionID)
	s.mu.Unlock()
}
