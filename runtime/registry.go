package runtime

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IConnectionRegistry = (*ConnectionRegistry)(nil)

// ConnectionRegistry is the process-wide set of open connections.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	connections map[string]contract.Connection // map connection id -> connection
}

func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		log:         log,
		connections: make(map[string]contract.Connection),
	}
}

// Connect registers an open connection. Registering the same id twice keeps a single entry.
func (r *ConnectionRegistry) Connect(conn contract.Connection) {
	r.mu.Lock()
	r.connections[conn.ID()] = conn
	count := len(r.connections)
	r.mu.Unlock()

	r.log.Info("Connection established", "conn_id", conn.ID(), "connections", count)
}

// Disconnect removes a connection from the registry.
// It returns false when the connection was not registered, which means the
// transport reported the same close twice or never reported the open.
func (r *ConnectionRegistry) Disconnect(conn contract.Connection, reason string) bool {
	r.mu.Lock()
	_, ok := r.connections[conn.ID()]
	delete(r.connections, conn.ID())
	count := len(r.connections)
	r.mu.Unlock()

	if !ok {
		r.log.Warn("Connection remove failed", "conn_id", conn.ID(), "reason", reason, "error", errors.ErrUnknownConnection)
		return false
	}
	r.log.Info("Connection closed", "conn_id", conn.ID(), "reason", reason, "connections", count)
	return true
}

func (r *ConnectionRegistry) Contains(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[connID]
	return ok
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot returns the ids of every open connection.
func (r *ConnectionRegistry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.connections)
}
