// Package connection implements the process-wide connection manager (C3):
// one cached connection per backing store, refreshed on demand through a
// health-check-then-reconnect protocol.
package connection

import (
	"context"
	"fmt"
	"sync"
)

// Factory builds a fresh connection of type T.
type Factory[T any] func(ctx context.Context) (T, error)

// Pinger health-checks an existing connection of type T.
type Pinger[T any] func(ctx context.Context, conn T) error

// Closer releases a connection of type T.
type Closer[T any] func(conn T) error

// Manager caches a single connection of type T behind a mutex, matching
// §4.2's force-reconnect/health-check protocol. The zero value is not
// usable; construct with New.
type Manager[T any] struct {
	factory Factory[T]
	ping    Pinger[T]
	close   Closer[T]

	mu     sync.Mutex
	conn   T
	cached bool
}

// New wires a Manager around factory (creates a new connection), ping
// (store-specific health check), and close (store-specific teardown).
func New[T any](factory Factory[T], ping Pinger[T], close Closer[T]) *Manager[T] {
	return &Manager[T]{factory: factory, ping: ping, close: close}
}

// Get returns the cached connection, or a fresh one when forceReconnect is
// set, none is cached yet, or the cached connection fails its health check.
// A reconnect closes the stale connection first; a close error is ignored
// and does not reach the caller, and the new connection is still returned.
func (m *Manager[T]) Get(ctx context.Context, forceReconnect bool) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !forceReconnect && m.cached {
		if err := m.ping(ctx, m.conn); err == nil {
			return m.conn, nil
		}
		_ = m.close(m.conn)
		m.cached = false
	}

	if forceReconnect && m.cached {
		_ = m.close(m.conn)
		m.cached = false
	}

	conn, err := m.factory(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("connection manager: create connection: %w", err)
	}
	m.conn = conn
	m.cached = true
	return conn, nil
}

// With is the closure-scoped accessor: it resolves a connection (applying
// the same force-reconnect/health-check protocol as Get) and invokes fn
// with it, propagating fn's error unchanged so store-specific errors reach
// the caller untranslated.
func (m *Manager[T]) With(ctx context.Context, forceReconnect bool, fn func(conn T) error) error {
	conn, err := m.Get(ctx, forceReconnect)
	if err != nil {
		return err
	}
	return fn(conn)
}

// Close tears down the cached connection, if any, and clears the cache.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cached {
		return nil
	}
	err := m.close(m.conn)
	m.cached = false
	var zero T
	m.conn = zero
	return err
}
