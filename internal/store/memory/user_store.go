package memory

import (
	"context"
	"fmt"
	"sync"

	"auction-engine/internal/domain"
)

// UserStore enforces unique usernames and emails.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return fmt.Errorf("username %s: %w", user.Username, domain.ErrUserExists)
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return fmt.Errorf("email %s: %w", user.Email, domain.ErrUserExists)
	}
	if _, ok := s.byID[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, domain.ErrDuplicateKey)
	}

	u := *user
	s.byID[u.ID] = &u
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return s.GetUserByID(ctx, id)
}

func (s *UserStore) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}
