package inmemory

import (
	"log/slog"
	"sync"

	"github.com/watch2earn/cinema-server/internal/repository/connection"
)

type repo struct {
	conns map[string]connection.Conn
	mu    sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		conns: make(map[string]connection.Conn),
	}
}

func (r *repo) Add(id string, conn connection.Conn) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "conn_id", id)
	if _, ok := r.conns[id]; ok {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.conns[id] = conn
	return nil
}

func (r *repo) Remove(id string) error {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "conn_id", id)
	if _, ok := r.conns[id]; !ok {
		return connection.ErrNotFound
	}

	delete(r.conns, id)
	return nil
}

func (r *repo) Get(id string) (connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CloseAll closes and forgets every registered connection.
func (r *repo) CloseAll() int {
	funcName := "connection.inmemory.CloseAll"
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]connection.Conn)
	r.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			slog.Debug(funcName, "conn_id", id, "error", err)
		}
	}

	return len(conns)
}
