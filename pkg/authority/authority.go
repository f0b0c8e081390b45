// Package authority stores per-user authority levels on each platform.
package authority

import (
	"context"
	"strings"
	"sync"
)

// Store looks up a user's authority. ok is false for unknown users.
type Store interface {
	Authority(ctx context.Context, platform, userID string) (level int, ok bool, err error)
}

func key(platform, userID string) string {
	return platform + ":" + userID
}

// MemoryStore holds levels in memory, typically seeded from config.
type MemoryStore struct {
	mu     sync.RWMutex
	levels map[string]int
}

// NewMemoryStore copies users, keyed "platform:user_id".
func NewMemoryStore(users map[string]int) *MemoryStore {
	levels := make(map[string]int, len(users))
	for k, v := range users {
		if strings.Contains(k, ":") {
			levels[k] = v
		}
	}
	return &MemoryStore{levels: levels}
}

func (m *MemoryStore) Authority(_ context.Context, platform, userID string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	level, ok := m.levels[key(platform, userID)]
	return level, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, platform, userID string, level int) error {
	m.mu.Lock()
	m.levels[key(platform, userID)] = level
	m.mu.Unlock()
	return nil
}

// Layered asks each store in order and returns the first hit. A store that
// errors is skipped if a later store answers.
type Layered []Store

func (l Layered) Authority(ctx context.Context, platform, userID string) (int, bool, error) {
	var firstErr error
	for _, s := range l {
		level, ok, err := s.Authority(ctx, platform, userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return level, true, nil
		}
	}
	return 0, false, firstErr
}
