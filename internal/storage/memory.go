package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/trashgame/trash-server-go/internal/game"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

// MemoryStore implements game.Store in process memory. Saved snapshots
// are cloned on the way in and out so the caller can keep mutating its
// copy.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*game.GameState
	progress  map[string]*progression.Progress
}

var _ game.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*game.GameState),
		progress:  make(map[string]*progression.Progress),
	}
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, saveID string, state *game.GameState) error {
	if saveID == "" {
		return fmt.Errorf("save id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[saveID] = state.Clone()
	return nil
}

func (m *MemoryStore) LoadSnapshot(_ context.Context, saveID string) (*game.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.snapshots[saveID]
	if !ok {
		return nil, fmt.Errorf("save %q not found", saveID)
	}
	return state.Clone(), nil
}

func (m *MemoryStore) SaveProgress(_ context.Context, p *progression.Progress) error {
	if p == nil || p.PlayerID == "" {
		return fmt.Errorf("progress with player id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.progress[p.PlayerID] = &cp
	return nil
}

func (m *MemoryStore) LoadProgress(_ context.Context, playerID string) (*progression.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[playerID]
	if !ok {
		return nil, fmt.Errorf("progress for %q not found", playerID)
	}
	cp := *p
	return &cp, nil
}
