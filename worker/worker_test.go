package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/queue"
)

// fakeAcknowledger records Ack/Nack calls so processMessage's delivery
// outcome can be asserted without a real broker.
type fakeAcknowledger struct {
	acked      bool
	nacked     bool
	nackRequeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.nackRequeue = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func newTestWorker(t *testing.T) (*Worker, *queue.MockAMQPChannel) {
	t.Helper()
	dialer, mockChannel, _ := queue.SetupMockDialerForTest()
	factory := queue.NewFactoryWithDialer("amqp://test", dialer)
	cfg := DefaultConfig("owner-1", "validations")
	cfg.MessageQueueSize = 4
	w := New(factory, queue.DefaultTopology("sheetflow"), cfg, nil)
	return w, mockChannel
}

func TestWorker_ProcessMessage_ValidEnvelopeAcksAndBuffers(t *testing.T) {
	w, _ := newTestWorker(t)
	ack := &fakeAcknowledger{}

	body, err := json.Marshal(model.Message{ID: "t1", Task: model.OpValidationUpload, ImportName: "u1"})
	require.NoError(t, err)

	w.processMessage(amqp.Delivery{Body: body, Acknowledger: ack})

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, 1, w.QueueSize())
}

func TestWorker_ProcessMessage_MalformedBodyNacksWithoutRequeue(t *testing.T) {
	w, _ := newTestWorker(t)
	ack := &fakeAcknowledger{}

	w.processMessage(amqp.Delivery{Body: []byte("not json"), Acknowledger: ack})

	assert.True(t, ack.nacked)
	assert.False(t, ack.nackRequeue)
	assert.False(t, ack.acked)
	assert.Equal(t, 0, w.QueueSize())
}

func TestWorker_GetMessageStream_YieldsBufferedMessage(t *testing.T) {
	w, _ := newTestWorker(t)
	ack := &fakeAcknowledger{}
	body, err := json.Marshal(model.Message{ID: "t2"})
	require.NoError(t, err)
	w.processMessage(amqp.Delivery{Body: body, Acknowledger: ack})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := w.GetMessageStream(ctx, 50*time.Millisecond, false)

	select {
	case msg := <-stream:
		assert.Equal(t, "t2", msg.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for buffered message")
	}
}

func TestWorker_GetMessageStream_YieldsLivenessSentinelOnTimeout(t *testing.T) {
	w, _ := newTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := w.GetMessageStream(ctx, 10*time.Millisecond, true)

	select {
	case msg := <-stream:
		assert.Equal(t, "", msg.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for liveness sentinel")
	}
}

func TestWorker_StopConsuming_IsIdempotent(t *testing.T) {
	w, _ := newTestWorker(t)
	assert.NotPanics(t, func() {
		w.StopConsuming()
		w.StopConsuming()
	})
}

func TestWorker_HasMessages(t *testing.T) {
	w, _ := newTestWorker(t)
	assert.False(t, w.HasMessages())

	ack := &fakeAcknowledger{}
	body, _ := json.Marshal(model.Message{ID: "t3"})
	w.processMessage(amqp.Delivery{Body: body, Acknowledger: ack})

	assert.True(t, w.HasMessages())
}
