package payment

import (
	"sync"

	"go.uber.org/zap"
)

// Manager выдаёт координатор платёжных намерений активной сессии.
type Manager struct {
	mu     sync.Mutex
	coords map[string]*Coordinator
	gw     Gateway
	logger *zap.Logger
}

// NewManager создаёт менеджер координаторов поверх указанного шлюза.
func NewManager(gw Gateway, logger *zap.Logger) *Manager {
	return &Manager{
		coords: make(map[string]*Coordinator),
		gw:     gw,
		logger: logger,
	}
}

// Get возвращает координатор сессии, создавая его при первом обращении.
func (m *Manager) Get(sessionID string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coord, ok := m.coords[sessionID]; ok {
		return coord
	}

	coord := NewCoordinator(m.gw, m.logger)
	m.coords[sessionID] = coord
	return coord
}

// Release сбрасывает намерение сессии и забывает её координатор.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	coord, ok := m.coords[sessionID]
	delete(m.coords, sessionID)
	m.mu.Unlock()

	if ok {
		coord.Release()
	}
}
