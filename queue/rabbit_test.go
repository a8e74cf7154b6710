package queue

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_GetConnectionCachesPerOwner(t *testing.T) {
	dialer, _, _ := SetupMockDialerForTest()
	f := NewFactoryWithDialer("amqp://localhost", dialer)

	c1, err := f.GetConnection("worker-a")
	require.NoError(t, err)
	c2, err := f.GetConnection("worker-a")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.True(t, dialer.DialCalled)
}

func TestSetupInfrastructure_DeclaresTopology(t *testing.T) {
	_, mockChannel, _ := SetupMockDialerForTest()
	topology := DefaultTopology("sheetflow.events")

	err := SetupInfrastructure(mockChannel, topology)
	require.NoError(t, err)
	assert.True(t, mockChannel.ExchangeDeclareCalled)
	assert.True(t, mockChannel.QueueDeclareCalled)
	assert.True(t, mockChannel.QueueBindCalled)
}

func TestFactory_CloseConnectionsRemovesOwner(t *testing.T) {
	dialer, _, _ := SetupMockDialerForTest()
	f := NewFactoryWithDialer("amqp://localhost", dialer)

	_, err := f.GetChannel("owner-a")
	require.NoError(t, err)
	require.NoError(t, f.CloseConnections("owner-a"))

	_, hasConn := f.conns["owner-a"]
	_, hasChan := f.chans["owner-a"]
	assert.False(t, hasConn)
	assert.False(t, hasChan)
}

func TestFactory_CloseConnectionsIsSafeOnUnknownOwner(t *testing.T) {
	dialer, _, _ := SetupMockDialerForTest()
	f := NewFactoryWithDialer("amqp://localhost", dialer)
	assert.NoError(t, f.CloseConnections("never-opened"))
}

func TestFactory_PublishSetsPersistentDeliveryMode(t *testing.T) {
	dialer, mockChannel, _ := SetupMockDialerForTest()
	f := NewFactoryWithDialer("amqp://localhost", dialer)

	err := f.Publish("owner-a", "sheetflow.events", "schemas.update", amqp.Publishing{Body: []byte("{}")})
	require.NoError(t, err)
	require.Len(t, mockChannel.PublishedMessages, 1)
	assert.EqualValues(t, amqp.Persistent, mockChannel.PublishedMessages[0].DeliveryMode)
	assert.Equal(t, "application/json", mockChannel.PublishedMessages[0].ContentType)
}
