package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssalazarv/voicegate/internal/model/conversation"
)

var ErrSessionNotFound = errors.New("session not found")

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]conversation.Session
	turns    map[string][]conversation.Turn
}

// NewService bootstraps the in-memory conversation service.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]conversation.Session),
		turns:    make(map[string][]conversation.Turn),
	}
}

// CreateSession provisions an anonymous voice session.
func (s *Service) CreateSession(_ context.Context, voiceID, language string) (conversation.Session, error) {
	session := conversation.Session{
		ID:        uuid.NewString(),
		VoiceID:   voiceID,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]conversation.Turn, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// SaveTurn appends a turn to the session history.
func (s *Service) SaveTurn(_ context.Context, turn conversation.Turn) error {
	if turn.SessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[turn.SessionID]; !ok {
		return ErrSessionNotFound
	}

	turn.ID = uuid.NewString()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored turns for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}
