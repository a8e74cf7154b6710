// Package gateway implements the streaming gateway (C8): a worker manager
// that keeps one goroutine per registered worker and exposes its message
// stream both as a gRPC server-streaming RPC and as a Server-Sent-Events
// endpoint, for clients that can't speak gRPC.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sheetflow/sheetflow/worker"
)

// Manager owns a set of workers, each consuming on its own goroutine.
// Workers remain running across many streaming clients — each RPC/SSE
// connection is just another drain of the worker's shared in-process
// queue, so two simultaneous subscribers split deliveries rather than
// each seeing every message (at-most-one delivery per message).
type Manager struct {
	logger *logrus.Entry

	mu      sync.RWMutex
	workers map[string]*worker.Worker
	ready   map[string]chan struct{}
}

// NewManager builds an empty Manager.
func NewManager(logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		logger:  logger,
		workers: make(map[string]*worker.Worker),
		ready:   make(map[string]chan struct{}),
	}
}

// Spawn registers w under workerID and starts its consume loop on its own
// goroutine, returning immediately. Ready blocks until the worker has
// entered its consume loop (or ctx is done).
func (m *Manager) Spawn(ctx context.Context, workerID string, w *worker.Worker) {
	ready := make(chan struct{})

	m.mu.Lock()
	m.workers[workerID] = w
	m.ready[workerID] = ready
	m.mu.Unlock()

	go func() {
		go m.waitUntilConsuming(w, ready)
		if err := w.StartConsuming(ctx); err != nil {
			m.logger.WithError(err).WithField("worker_id", workerID).Error("worker exited with fatal error")
		}
	}()
}

func (m *Manager) waitUntilConsuming(w *worker.Worker, ready chan struct{}) {
	defer close(ready)
	for i := 0; i < 100; i++ {
		if w.IsConsuming() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Ready blocks until workerID's worker has signalled it is consuming, or
// ctx is done. If the worker is still not consuming after about a second of
// polling, Ready returns an error.
func (m *Manager) Ready(ctx context.Context, workerID string) error {
	m.mu.RLock()
	ready, ok := m.ready[workerID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("gateway: unknown worker %q", workerID)
	}
	select {
	case <-ready:
		if w, ok := m.Get(workerID); ok && !w.IsConsuming() {
			return fmt.Errorf("gateway: worker %q did not start consuming", workerID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns workerID's worker, if registered.
func (m *Manager) Get(workerID string) (*worker.Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[workerID]
	return w, ok
}

// StopAll stops every registered worker.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.workers {
		w.StopConsuming()
	}
}
