package correlation

import (
	"sync"
	"time"
)

// LastIDs remembers the latest platform message id per conversation key.
type LastIDs struct {
	mu  sync.RWMutex
	ids map[string]string
}

func NewLastIDs() *LastIDs {
	return &LastIDs{ids: make(map[string]string)}
}

func (l *LastIDs) Set(key, messageID string) {
	if key == "" || messageID == "" {
		return
	}
	l.mu.Lock()
	l.ids[key] = messageID
	l.mu.Unlock()
}

func (l *LastIDs) Get(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.ids[key]
	return id, ok
}

// State is the process-lifetime correlation state owned by one bridge.
type State struct {
	Registry *Registry
	LastIDs  *LastIDs
}

func NewState(ttl time.Duration) *State {
	return &State{Registry: NewRegistry(ttl), LastIDs: NewLastIDs()}
}

func (s *State) Close() {
	s.Registry.Close()
}
