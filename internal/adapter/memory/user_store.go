// Package memory keeps identity data in process memory. It backs tests and
// STORE=memory runs without a database.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gvangeel/yellow/internal/identity"
)

type UserStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]identity.User
	byUserName map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
}

var _ identity.UserStore = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[uuid.UUID]identity.User),
		byUserName: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
	}
}

func (s *UserStore) Create(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUserName[u.NormalizedUserName]; ok {
		return identity.ErrDuplicateUserName
	}
	if u.NormalizedEmail != "" {
		if _, ok := s.byEmail[u.NormalizedEmail]; ok {
			return identity.ErrDuplicateEmail
		}
	}

	s.byID[u.ID] = *u
	s.byUserName[u.NormalizedUserName] = u.ID
	if u.NormalizedEmail != "" {
		s.byEmail[u.NormalizedEmail] = u.ID
	}
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *UserStore) GetByNormalizedEmail(_ context.Context, normalizedEmail string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizedEmail]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return s.get(id)
}

func (s *UserStore) GetByNormalizedUserName(_ context.Context, normalizedUserName string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUserName[normalizedUserName]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return s.get(id)
}

func (s *UserStore) Update(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[u.ID]
	if !ok {
		return identity.ErrUserNotFound
	}
	if stored.ConcurrencyStamp != u.ConcurrencyStamp {
		return identity.ErrConcurrencyFailure
	}

	if u.NormalizedUserName != stored.NormalizedUserName {
		if _, taken := s.byUserName[u.NormalizedUserName]; taken {
			return identity.ErrDuplicateUserName
		}
	}
	if u.NormalizedEmail != stored.NormalizedEmail && u.NormalizedEmail != "" {
		if _, taken := s.byEmail[u.NormalizedEmail]; taken {
			return identity.ErrDuplicateEmail
		}
	}

	delete(s.byUserName, stored.NormalizedUserName)
	delete(s.byEmail, stored.NormalizedEmail)

	u.ConcurrencyStamp = identity.NewConcurrencyStamp()
	s.byID[u.ID] = *u
	s.byUserName[u.NormalizedUserName] = u.ID
	if u.NormalizedEmail != "" {
		s.byEmail[u.NormalizedEmail] = u.ID
	}
	return nil
}

// get returns a copy so callers never share the stored value.
func (s *UserStore) get(id uuid.UUID) (*identity.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return &u, nil
}
