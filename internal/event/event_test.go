package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EventHandler_SynchronousHandlerReceivesDispatch(t *testing.T) {
	bus := New()

	received := make([]Payload, 0)
	bus.RegisterHandlerFunction(TaskUpdateEvent, func(event Event, payload Payload) {
		assert.Equal(t, TaskUpdateEvent, event)
		received = append(received, payload)
	})

	subject := uuid.New()
	bus.Dispatch(TaskUpdateEvent, subject)

	require.Len(t, received, 1)
	assert.Equal(t, subject, received[0])
}

func Test_EventHandler_ChannelReceivesOnlyRegisteredEvents(t *testing.T) {
	bus := New()

	channel := make(HandlerChannel, 4)
	bus.RegisterHandlerChannel(channel, TaskCompleteEvent, TaskDeleteEvent)

	subject := uuid.New()
	bus.Dispatch(TaskUpdateEvent, subject)
	bus.Dispatch(TaskCompleteEvent, subject)
	bus.Dispatch(TaskDeleteEvent, subject)

	require.Len(t, channel, 2)
	first := <-channel
	assert.Equal(t, TaskCompleteEvent, first.Event)
	assert.Equal(t, subject, first.Payload)
	second := <-channel
	assert.Equal(t, TaskDeleteEvent, second.Event)
}

func Test_EventHandler_AsyncHandlerDispatchedInGoroutine(t *testing.T) {
	bus := New()

	received := make(chan Payload, 1)
	bus.RegisterAsyncHandlerFunction(TaskProgressEvent, func(_ Event, payload Payload) {
		received <- payload
	})

	subject := uuid.New()
	bus.Dispatch(TaskProgressEvent, subject)

	select {
	case payload := <-received:
		assert.Equal(t, subject, payload)
	case <-time.After(time.Second):
		t.Fatal("async handler was never invoked")
	}
}

func Test_EventHandler_IllegalPayloadIsDroppedNotDelivered(t *testing.T) {
	bus := New()

	invoked := false
	bus.RegisterHandlerFunction(TaskUpdateEvent, func(_ Event, _ Payload) { invoked = true })

	bus.Dispatch(TaskUpdateEvent, "not-a-uuid")
	bus.Dispatch(TaskUpdateEvent, nil)

	assert.False(t, invoked, "lifecycle events require a uuid.UUID payload")
}
