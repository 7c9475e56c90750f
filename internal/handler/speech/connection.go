package speech

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ConnectionManager WebSocket连接管理器：每个会话只保留一条活动连接。
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

// AddConnection 添加连接
func (cm *ConnectionManager) AddConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// 如果已存在连接，先关闭旧连接
	if oldConn, exists := cm.connections[sessionID]; exists {
		oldConn.Close()
	}

	cm.connections[sessionID] = conn
}

// GetConnection 获取连接
func (cm *ConnectionManager) GetConnection(sessionID string) (*websocket.Conn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conn, exists := cm.connections[sessionID]
	return conn, exists
}

// RemoveConnection 移除连接；只在仍指向当前连接时删除，避免误删新连接。
func (cm *ConnectionManager) RemoveConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if current, exists := cm.connections[sessionID]; exists && current == conn {
		delete(cm.connections, sessionID)
	}
}

// CloseAll 关闭所有连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for sessionID, conn := range cm.connections {
		conn.Close()
		delete(cm.connections, sessionID)
	}
}
