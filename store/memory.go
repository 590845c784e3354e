package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"lifesync/models"
)

type memorySession struct {
	hostID    string
	members   map[string]bool
	state     *models.GameState
	updatedAt time.Time
	watchers  map[*watcher]struct{}
}

// Memory is an in-process Backend. Used by tests and single-binary setups.
type Memory struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	sessions map[string]*memorySession
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{clock: clock, sessions: make(map[string]*memorySession)}
}

func (m *Memory) CreateSession(_ context.Context, id, hostID string) (string, error) {
	if id == "" {
		id = NewSessionID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return "", ErrSessionExists
	}
	m.sessions[id] = &memorySession{
		hostID:    hostID,
		members:   map[string]bool{hostID: true},
		updatedAt: m.clock.Now(),
		watchers:  make(map[*watcher]struct{}),
	}
	return id, nil
}

func (m *Memory) SessionExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *Memory) AddMember(_ context.Context, id, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.members[playerID] = true
	s.updatedAt = m.clock.Now()
	return nil
}

func (m *Memory) SetGameState(_ context.Context, id string, payload models.Payload) error {
	state := payload.State()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.state = &state
	s.updatedAt = m.clock.Now()
	for w := range s.watchers {
		w.offer(models.NewPayload(state))
	}
	return nil
}

func (m *Memory) GetGameState(_ context.Context, id string) (*models.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.state == nil {
		return nil, nil
	}
	p := models.NewPayload(*s.state)
	return &p, nil
}

func (m *Memory) Subscribe(_ context.Context, id string, fn func(models.Payload)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	w := newWatcher(fn)
	w.detach = func() {
		m.mu.Lock()
		delete(s.watchers, w)
		m.mu.Unlock()
	}
	s.watchers[w] = struct{}{}
	if s.state != nil {
		w.offer(models.NewPayload(*s.state))
	}
	return w, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	members := make([]string, 0, len(s.members))
	for pid := range s.members {
		members = append(members, pid)
	}
	sort.Strings(members)
	return models.Session{ID: id, HostID: s.hostID, Members: members}, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteIdle(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.updatedAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
