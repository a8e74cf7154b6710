package publisher

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/queue"
)

func newTestPublisher(t *testing.T) (*Publisher, *queue.MockAMQPChannel) {
	t.Helper()
	dialer, mockChannel, _ := queue.SetupMockDialerForTest()
	factory := queue.NewFactoryWithDialer("amqp://test", dialer)
	return New(factory, "sheetflow", "publisher-1"), mockChannel
}

func TestPublishValidation_SetsPersistentDeliveryAndHexEncodesFile(t *testing.T) {
	p, mockChannel := newTestPublisher(t)

	taskID, err := p.PublishValidation("validation.u1", "u1", []byte("hello"), model.FileMetadata{
		Filename: "u1.csv", ContentType: "text/csv", Size: 5,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(taskID)
	require.NoError(t, err)

	require.Len(t, mockChannel.PublishedMessages, 1)
	published := mockChannel.PublishedMessages[0]
	assert.Equal(t, taskID, published.MessageId)
	assert.EqualValues(t, amqp.Persistent, published.DeliveryMode)

	var msg model.Message
	require.NoError(t, json.Unmarshal(published.Body, &msg))
	assert.Equal(t, model.OpValidationUpload, msg.Task)
	assert.Equal(t, hex.EncodeToString([]byte("hello")), msg.FileData)
	assert.Equal(t, "u1.csv", msg.Metadata.Filename)
	assert.Equal(t, "validation.u1", mockChannel.PublishedKeys[0])
}

func TestPublishSchemaUpdate_CarriesSchemaAndRawFlag(t *testing.T) {
	p, mockChannel := newTestPublisher(t)

	schema := json.RawMessage(`{"type":"object"}`)
	taskID, err := p.PublishSchemaUpdate("schemas.u2", "u2", schema, true)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	var msg model.Message
	require.NoError(t, json.Unmarshal(mockChannel.PublishedMessages[0].Body, &msg))
	assert.Equal(t, model.OpSchemaUpdate, msg.Task)
	assert.JSONEq(t, string(schema), string(msg.Schema))
	assert.True(t, msg.Raw)
}

func TestPublish_ReturnsDistinctTaskIDsPerCall(t *testing.T) {
	p, _ := newTestPublisher(t)

	id1, err := p.PublishSchemaUpdate("schemas.u3", "u3", json.RawMessage(`{}`), false)
	require.NoError(t, err)
	id2, err := p.PublishSchemaUpdate("schemas.u3", "u3", json.RawMessage(`{}`), false)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}
