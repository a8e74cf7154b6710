// Package queue implements the broker connection factory (C5): an
// owner-keyed map of RabbitMQ connections and channels, plus idempotent
// declaration of the exchange/queue topology the worker framework and
// publisher depend on.
package queue

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// Topology describes the durable exchange and the queues bound to it that
// SetupInfrastructure declares. One Topology is shared by every owner in a
// process; declaration is idempotent so repeated calls are harmless.
type Topology struct {
	ExchangeName string
	ExchangeKind string
	Queues       []QueueBinding
}

// QueueBinding names one durable queue and the routing-key pattern that
// binds it to Topology.ExchangeName.
type QueueBinding struct {
	Name       string
	RoutingKey string
}

// DefaultTopology matches §6: one durable topic exchange with four bound
// queues for schema/validation requests and their result counterparts.
func DefaultTopology(exchange string) Topology {
	return Topology{
		ExchangeName: exchange,
		ExchangeKind: "topic",
		Queues: []QueueBinding{
			{Name: "schemas", RoutingKey: "schemas.*"},
			{Name: "validations", RoutingKey: "validation.*"},
			{Name: "schemas-results", RoutingKey: "schemas.result.*"},
			{Name: "validations-results", RoutingKey: "validation.result.*"},
		},
	}
}

// Factory is the per-process broker connection factory (C5). It keeps one
// connection and one channel per owner id — a worker instance or a
// gateway-hosted worker — so each owner has exclusive use of its channel,
// matching the "one goroutine owns its channel" guidance.
type Factory struct {
	url    string
	dialer AMQPDialer

	mu    sync.Mutex
	conns map[string]AMQPConnection
	chans map[string]AMQPChannel
}

// NewFactory builds a Factory dialing url with the real AMQP client.
func NewFactory(url string) *Factory {
	return NewFactoryWithDialer(url, &RealAMQPDialer{})
}

// NewFactoryWithDialer builds a Factory with an injected dialer, for tests.
func NewFactoryWithDialer(url string, dialer AMQPDialer) *Factory {
	return &Factory{
		url:    url,
		dialer: dialer,
		conns:  make(map[string]AMQPConnection),
		chans:  make(map[string]AMQPChannel),
	}
}

// GetConnection returns ownerID's connection, dialing a new one if none is
// cached. The lock is held only across the map read/write, not the dial.
func (f *Factory) GetConnection(ownerID string) (AMQPConnection, error) {
	f.mu.Lock()
	if conn, ok := f.conns[ownerID]; ok {
		f.mu.Unlock()
		return conn, nil
	}
	f.mu.Unlock()

	conn, err := f.dialer.Dial(f.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker for owner %q: %w", ownerID, err)
	}

	f.mu.Lock()
	f.conns[ownerID] = conn
	f.mu.Unlock()
	return conn, nil
}

// GetChannel returns ownerID's channel, opening one from its connection if
// none is cached. GetConnection is called first so a fresh owner gets both.
func (f *Factory) GetChannel(ownerID string) (AMQPChannel, error) {
	f.mu.Lock()
	if ch, ok := f.chans[ownerID]; ok {
		f.mu.Unlock()
		return ch, nil
	}
	f.mu.Unlock()

	conn, err := f.GetConnection(ownerID)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel for owner %q: %w", ownerID, err)
	}

	f.mu.Lock()
	f.chans[ownerID] = ch
	f.mu.Unlock()
	return ch, nil
}

// SetupInfrastructure idempotently declares the exchange and every bound
// queue in topology on the given channel.
func SetupInfrastructure(ch AMQPChannel, topology Topology) error {
	if err := ch.ExchangeDeclare(topology.ExchangeName, topology.ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", topology.ExchangeName, err)
	}
	for _, q := range topology.Queues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %q: %w", q.Name, err)
		}
		if err := ch.QueueBind(q.Name, q.RoutingKey, topology.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %q to %q: %w", q.Name, topology.ExchangeName, err)
		}
	}
	return nil
}

// CloseConnections closes ownerID's channel then connection, under the
// factory mutex, and forgets both map entries. Safe to call on an owner
// that was never opened.
func (f *Factory) CloseConnections(ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	if ch, ok := f.chans[ownerID]; ok {
		if err := ch.Close(); err != nil {
			firstErr = err
		}
		delete(f.chans, ownerID)
	}
	if conn, ok := f.conns[ownerID]; ok {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.conns, ownerID)
	}
	return firstErr
}

// Publish publishes msg to exchange with routingKey using ownerID's
// channel. It forces persistent delivery mode and defaults the content type
// to application/json; the message id and timestamp are passed through as
// the caller (the publisher, C7) set them.
func (f *Factory) Publish(ownerID, exchange, routingKey string, msg amqp.Publishing) error {
	ch, err := f.GetChannel(ownerID)
	if err != nil {
		return err
	}
	msg.DeliveryMode = amqp.Persistent
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}
	return ch.Publish(exchange, routingKey, false, false, msg)
}
