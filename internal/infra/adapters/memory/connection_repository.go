package memory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/solovey/codemesh/internal/application/constant"
)

// ConnectionRepository tracks live signaling connections by connID and
// serializes writes to each of them.
type ConnectionRepository interface {
	Add(connID string, conn *websocket.Conn)
	Remove(connID string)

	// Write marshals payload as JSON to connID. A write to an unknown
	// or already-removed connection is a silent drop.
	Write(connID string, payload any) bool
}

type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type connectionRepository struct {
	conns map[string]*safeConn

	mu sync.RWMutex
}

func NewConnectionRepository() ConnectionRepository {
	return &connectionRepository{
		conns: make(map[string]*safeConn, 16),
	}
}

func (r *connectionRepository) Add(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = &safeConn{conn: conn}
}

func (r *connectionRepository) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)
}

func (r *connectionRepository) Write(connID string, payload any) bool {
	sc, ok := r.getSafeConn(connID)
	if !ok {
		return false
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.conn.WriteJSON(payload); err != nil {
		slog.Error("write to websocket", slog.String(constant.ConnID, connID), slog.Any(constant.Error, err))
		return false
	}

	return true
}

func (r *connectionRepository) getSafeConn(connID string) (*safeConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.conns[connID]
	return sc, ok
}
