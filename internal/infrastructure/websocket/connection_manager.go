package websocket

import (
	"encoding/json"
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // lotID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, lotID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[lotID] == nil {
		cm.connections[lotID] = make(map[string]domain.WebSocketConnection)
	}
	if prev, exists := cm.connections[lotID][userID]; exists {
		cm.removeUserConn(userID, prev)
		_ = prev.Close()
	}
	cm.connections[lotID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "lot_id", lotID)
	return nil
}

// UnregisterConnection removes conn only while it is still the one registered for
// userID on lotID, so a replaced connection shutting down leaves its successor alone.
func (cm *ConnectionManager) UnregisterConnection(userID, lotID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if lotConns, exists := cm.connections[lotID]; exists && lotConns[userID] == conn {
		delete(lotConns, userID)
		if len(lotConns) == 0 {
			delete(cm.connections, lotID)
		}
	}
	cm.removeUserConn(userID, conn)

	cm.log.Info("Connection unregistered", "user_id", userID, "lot_id", lotID)
	return nil
}

// removeUserConn drops conn from userID's index. Callers hold the lock.
func (cm *ConnectionManager) removeUserConn(userID string, conn domain.WebSocketConnection) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var kept []domain.WebSocketConnection
	for _, existing := range userConnections {
		if existing != conn {
			kept = append(kept, existing)
		}
	}

	if len(kept) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = kept
	}
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(lotID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for userID, conn := range cm.connections[lotID] {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID, "lot_id", lotID, "error", err)
		}
		cm.removeUserConn(userID, conn)
	}
	delete(cm.connections, lotID)

	cm.log.Info("Connections closed for lot", "lot_id", lotID)
	return nil
}

func (cm *ConnectionManager) GetConnectionsForLot(lotID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	connections := make([]domain.WebSocketConnection, 0, len(cm.connections[lotID]))
	for _, conn := range cm.connections[lotID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

// BroadcastToLot encodes message once and sends it to every watcher of lotID.
// Send failures are logged and skipped.
func (cm *ConnectionManager) BroadcastToLot(lotID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	connections := cm.GetConnectionsForLot(lotID)
	cm.log.Debug("Broadcasting to lot", "lot_id", lotID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(), "lot_id", lotID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}
	return nil
}
