// Package publisher implements the task publisher (C7): it turns an
// upload request into a broker message envelope and hands it to the
// broker connection factory, returning the generated task id to the
// caller.
package publisher

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/queue"
)

// Publisher publishes validation and schema-update requests to the
// broker, configuring the factory's connection lazily on first use.
type Publisher struct {
	factory      *queue.Factory
	exchangeName string
	ownerID      string
}

// New wires a Publisher around factory, publishing to exchangeName using
// ownerID's connection (the factory dials/caches lazily on first Publish).
func New(factory *queue.Factory, exchangeName, ownerID string) *Publisher {
	return &Publisher{factory: factory, exchangeName: exchangeName, ownerID: ownerID}
}

// PublishValidation builds a validation-request envelope for fileData and
// metadata, publishes it under routingKey, and returns the generated task
// id.
func (p *Publisher) PublishValidation(routingKey, importName string, fileData []byte, metadata model.FileMetadata) (string, error) {
	taskID := uuid.NewString()
	msg := model.Message{
		ID:         taskID,
		Task:       model.OpValidationUpload,
		ImportName: importName,
		Date:       time.Now().UTC(),
		FileData:   hex.EncodeToString(fileData),
		Metadata:   &metadata,
	}
	if err := p.publish(routingKey, taskID, msg); err != nil {
		return "", err
	}
	return taskID, nil
}

// PublishSchemaUpdate builds a schema-update envelope, publishes it under
// routingKey, and returns the generated task id.
func (p *Publisher) PublishSchemaUpdate(routingKey, importName string, schema json.RawMessage, raw bool) (string, error) {
	taskID := uuid.NewString()
	msg := model.Message{
		ID:         taskID,
		Task:       model.OpSchemaUpdate,
		ImportName: importName,
		Date:       time.Now().UTC(),
		Schema:     schema,
		Raw:        raw,
	}
	if err := p.publish(routingKey, taskID, msg); err != nil {
		return "", err
	}
	return taskID, nil
}

func (p *Publisher) publish(routingKey, taskID string, msg model.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message envelope: %w", err)
	}

	return p.factory.Publish(p.ownerID, p.exchangeName, routingKey, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   taskID,
		Timestamp:   msg.Date,
		Body:        body,
	})
}
