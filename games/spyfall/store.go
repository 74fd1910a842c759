/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Store persists rooms by code. Implementations must return ErrRoomNotFound
// from Get for unknown codes and wrap transport failures in
// ErrConnectionFailure. Callers own the rooms they pass in and get back.
type Store interface {
	Get(ctx context.Context, code string) (*Room, error)
	Set(ctx context.Context, room *Room) error
	Delete(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
	Codes(ctx context.Context) ([]string, error)
}

// MemoryStore keeps rooms in a process local map.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}

	return room.Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[room.Code] = room.Clone()

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, code)

	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[code]

	return ok, nil
}

func (s *MemoryStore) Codes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return codes, nil
}

// ParseStoreKind validates the --store flag.
func ParseStoreKind(s string) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(s)); kind {
	case "memory", "redis":
		return kind, nil
	default:
		return "", fmt.Errorf("unknown store %q (must be memory or redis)", s)
	}
}
