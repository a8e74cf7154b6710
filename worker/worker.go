// Package worker implements the messaging worker framework (C6): a single
// broker consumer that decouples delivery from processing through a
// bounded in-memory queue, with a stability-window retry-reset policy
// around the broker connection.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/queue"
)

// Config configures a Worker's retry and backpressure behavior.
type Config struct {
	OwnerID            string
	QueueName          string
	MaxRetries         int
	RetryDelay         time.Duration
	Backoff            float64
	StabilityThreshold time.Duration
	PrefetchCount      int
	MessageQueueSize   int
}

// DefaultConfig returns sensible defaults for a single queue consumer.
func DefaultConfig(ownerID, queueName string) Config {
	return Config{
		OwnerID:            ownerID,
		QueueName:          queueName,
		MaxRetries:         5,
		RetryDelay:         time.Second,
		Backoff:            2,
		StabilityThreshold: 30 * time.Second,
		PrefetchCount:      10,
		MessageQueueSize:   100,
	}
}

// Worker consumes model.Message envelopes from one broker queue, buffering
// successfully-parsed messages in a bounded channel for downstream drain
// via GetMessageStream.
type Worker struct {
	factory *queue.Factory
	topology queue.Topology
	cfg      Config
	logger   *logrus.Entry

	messageQueue chan model.Message
	stopOnce     sync.Once
	stopEvent    chan struct{}
	consuming    bool
	mu           sync.Mutex
}

// New builds a Worker over factory's broker connections, declaring
// topology on first connect.
func New(factory *queue.Factory, topology queue.Topology, cfg Config, logger *logrus.Entry) *Worker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		factory:      factory,
		topology:     topology,
		cfg:          cfg,
		logger:       logger.WithField("owner_id", cfg.OwnerID),
		messageQueue: make(chan model.Message, cfg.MessageQueueSize),
		stopEvent:    make(chan struct{}),
	}
}

// StartConsuming runs the reconnect/backoff control loop described in the
// worker framework's specification: a connection that survives for at
// least StabilityThreshold resets the retry budget, so a worker with a
// long healthy run is never one flaky reconnect away from fatal exit.
// StartConsuming blocks until the broker consumer exits cleanly (stop
// requested) or the retry budget is exhausted, in which case it returns a
// non-nil error — the caller (main/CLI layer) decides whether that merits
// os.Exit(1); this package never calls it directly, to stay testable.
func (w *Worker) StartConsuming(ctx context.Context) error {
	attempts := 0
	currentDelay := w.cfg.RetryDelay

	for attempts < w.cfg.MaxRetries {
		connectedAt := time.Now()

		err := w.consumeOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		elapsed := time.Since(connectedAt)
		if elapsed >= w.cfg.StabilityThreshold {
			w.logger.WithField("stable_for", elapsed).Info("connection was stable before drop, resetting retry budget")
			attempts = 0
			currentDelay = w.cfg.RetryDelay
		}

		if attempts < w.cfg.MaxRetries-1 {
			w.logger.WithError(err).WithField("attempt", attempts+1).Warn("broker connection lost, retrying")
			select {
			case <-time.After(currentDelay):
			case <-ctx.Done():
				return nil
			}
			currentDelay = time.Duration(float64(currentDelay) * w.cfg.Backoff)
			attempts++
			continue
		}

		w.logger.WithError(err).Error("retry budget exhausted, worker exiting")
		w.StopConsuming()
		return fmt.Errorf("worker %q: retry budget exhausted: %w", w.cfg.OwnerID, err)
	}

	w.StopConsuming()
	return nil
}

// consumeOnce opens one connection/channel, declares the topology, sets
// QoS, and blocks draining deliveries until the channel closes, the
// context is cancelled, or StopConsuming is called.
func (w *Worker) consumeOnce(ctx context.Context) error {
	ch, err := w.factory.GetChannel(w.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := queue.SetupInfrastructure(ch, w.topology); err != nil {
		return fmt.Errorf("setup infrastructure: %w", err)
	}
	if err := ch.Qos(w.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(w.cfg.QueueName, w.cfg.OwnerID, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", w.cfg.QueueName, err)
	}

	w.mu.Lock()
	w.consuming = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.consuming = false
		w.mu.Unlock()
	}()

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %q", w.cfg.QueueName)
			}
			w.processMessage(delivery)
		case <-w.stopEvent:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// processMessage parses delivery.Body as a model.Message. A parse failure
// is NACKed without requeue, to avoid a poison-message loop; otherwise the
// message is pushed onto the bounded in-memory queue (blocking if full —
// that block is the backpressure signal carried back to the broker by a
// delayed ack) and positively acknowledged.
func (w *Worker) processMessage(delivery amqp.Delivery) {
	var msg model.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.WithError(err).Warn("malformed message body, dropping")
		_ = delivery.Nack(false, false)
		return
	}

	w.messageQueue <- msg
	_ = delivery.Ack(false)
}

// HasMessages reports whether GetMessageStream has anything ready to
// yield without blocking.
func (w *Worker) HasMessages() bool {
	return len(w.messageQueue) > 0
}

// QueueSize returns the number of messages currently buffered.
func (w *Worker) QueueSize() int {
	return len(w.messageQueue)
}

// GetMessageStream returns a channel fed by a goroutine that dequeues
// buffered messages with a timeout. On each timeout it either sends a
// liveness sentinel (a zero-value model.Message — the caller distinguishes
// it from a real message by ID == "") when yieldNilOnTimeout is set, or
// silently retries. The stream closes when ctx is done or StopConsuming
// runs.
func (w *Worker) GetMessageStream(ctx context.Context, timeout time.Duration, yieldNilOnTimeout bool) <-chan model.Message {
	out := make(chan model.Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-w.messageQueue:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				case <-w.stopEvent:
					return
				}
			case <-time.After(timeout):
				if yieldNilOnTimeout {
					select {
					case out <- model.Message{}:
					case <-ctx.Done():
						return
					case <-w.stopEvent:
						return
					}
				}
			case <-ctx.Done():
				return
			case <-w.stopEvent:
				return
			}
		}
	}()
	return out
}

// StopConsuming idempotently stops the worker: marks it not-consuming,
// closes stopEvent, and tears down its broker connections via the factory.
func (w *Worker) StopConsuming() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.consuming = false
		w.mu.Unlock()
		close(w.stopEvent)
		if err := w.factory.CloseConnections(w.cfg.OwnerID); err != nil {
			w.logger.WithError(err).Warn("error closing broker connections during stop")
		}
	})
}

// IsConsuming reports whether the worker is currently in its consume loop.
func (w *Worker) IsConsuming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consuming
}
