package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(10)
	var got []string
	bus.Subscribe(func(Event) { got = append(got, "a") })
	bus.Subscribe(func(Event) { got = append(got, "b") })

	bus.Emit(TopicConversation, "created", "c1", nil)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	bus := NewBus(10)
	calls := 0
	cancel := bus.Subscribe(func(Event) { calls++ })

	bus.Emit(TopicUsage, "recorded", "", nil)
	cancel()
	cancel()
	bus.Emit(TopicUsage, "recorded", "", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestSubscribe_CancelDuringDelivery(t *testing.T) {
	bus := NewBus(10)
	secondCalls := 0
	var cancelSecond func()
	bus.Subscribe(func(Event) { cancelSecond() })
	cancelSecond = bus.Subscribe(func(Event) { secondCalls++ })

	bus.Emit(TopicChat, "submitted", "", nil)

	assert.Equal(t, 0, secondCalls)
}

func TestPublish_RingBuffer(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Event{Kind: "one"})
	bus.Publish(Event{Kind: "two"})
	bus.Publish(Event{Kind: "three"})

	recent := bus.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].ID)
	assert.Equal(t, int64(3), recent[1].ID)
	assert.False(t, recent[1].At.IsZero())
}

func TestEmit_CarriesError(t *testing.T) {
	bus := NewBus(0)
	var got Event
	bus.Subscribe(func(ev Event) { got = ev })

	bus.Emit(TopicDispatch, "failed", "", errors.New("boom"))

	assert.Equal(t, TopicDispatch, got.Topic)
	assert.Equal(t, "boom", got.Err)
}

func TestPublish_NilBus(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: "x"}) })
}
