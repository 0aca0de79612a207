package focus

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager is the process-wide registry of focus groups. Display connections
// create their group here on open and destroy it on close.
type Manager struct {
	logger *slog.Logger

	mu     sync.RWMutex
	groups map[string]*Group
}

// NewManager creates an empty manager. A nil logger falls back to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		groups: make(map[string]*Group),
	}
}

// CreateGroup registers a new group under the given display identifier.
func (m *Manager) CreateGroup(name string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[name]; exists {
		return nil, fmt.Errorf("focus: group %q already exists", name)
	}
	g := NewGroup(name)
	m.groups[name] = g
	m.logger.Debug("focus group created", "group", name)
	return g, nil
}

// DestroyGroup removes a group and everything it tracks.
func (m *Manager) DestroyGroup(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[name]; !exists {
		return
	}
	delete(m.groups, name)
	m.logger.Debug("focus group destroyed", "group", name)
}

// Group looks up a group by display identifier.
func (m *Manager) Group(name string) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[name]
	return g, ok
}

// Groups returns all groups sorted by name.
func (m *Manager) Groups() []*Group {
	m.mu.RLock()
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ContextCount sums the contexts across every group.
func (m *Manager) ContextCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, g := range m.groups {
		total += g.Len()
	}
	return total
}
