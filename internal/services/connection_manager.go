package services

import (
	"log"
	"sync"

	"roomwatch/internal/models"
)

// ConnectionManager manages all active dashboard viewer connections
type ConnectionManager struct {
	connections map[string]*models.Viewer
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.Viewer),
	}
}

// Add adds a new viewer
func (cm *ConnectionManager) Add(viewer *models.Viewer) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[viewer.ConnID] = viewer
	log.Printf("✅ Viewer added: %s (Total: %d)", viewer.ConnID, len(cm.connections))
}

// Remove removes a viewer and closes its channels
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if viewer, exists := cm.connections[connID]; exists {
		viewer.MarkClosed()
		close(viewer.WriteChan)
		close(viewer.StopChan)
		delete(cm.connections, connID)
		log.Printf("❌ Viewer removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Get retrieves a viewer by ID
func (cm *ConnectionManager) Get(connID string) (*models.Viewer, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	viewer, exists := cm.connections[connID]
	return viewer, exists
}

// Count returns the number of active viewers
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// GetAll returns all active viewers
func (cm *ConnectionManager) GetAll() []*models.Viewer {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	viewers := make([]*models.Viewer, 0, len(cm.connections))
	for _, v := range cm.connections {
		viewers = append(viewers, v)
	}
	return viewers
}

// Broadcast queues an event for every viewer watching its room and returns how many accepted it.
// Slow viewers whose queue is full miss the event.
func (cm *ConnectionManager) Broadcast(event models.Event) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sent := 0
	for _, v := range cm.connections {
		if !v.Wants(event.Room) {
			continue
		}
		if v.SafeSend(event) {
			sent++
		}
	}
	return sent
}
