// Package kv persists the console's client-side state: the staff bearer
// token and the signed-in user record.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("kv: key not found")

const (
	KeyToken = "token"
	KeyUser  = "user"
)

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// User is the persisted signed-in account. Role is one of owner, admin,
// receptionist, customer or a site-specific value.
type User struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

func LoadUser(ctx context.Context, s Store) (User, error) {
	raw, err := s.Get(ctx, KeyUser)
	if err != nil {
		return User{}, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("decode stored user: %w", err)
	}
	return u, nil
}

func SaveUser(ctx context.Context, s Store, u User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyUser, string(raw))
}

type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
