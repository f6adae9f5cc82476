package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := New(zap.NewNop().Sugar())
	logs := bus.Subscribe(4, TopicSidecarLog)
	defer logs.Close()
	all := bus.Subscribe(4)
	defer all.Close()

	bus.Publish(TopicSidecarLog, "listening")
	bus.Publish(TopicConfigUpdated, "hash-1")

	ev := <-logs.C()
	assert.Equal(t, TopicSidecarLog, ev.Topic)
	assert.Equal(t, "listening", ev.Payload)
	assert.Len(t, logs.C(), 0)

	assert.Len(t, all.C(), 2)
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := New(zap.NewNop().Sugar())
	sub := bus.Subscribe(1)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(TopicSidecarError, i)
	}

	assert.Equal(t, uint64(9), sub.Dropped())
	ev := <-sub.C()
	assert.Equal(t, 0, ev.Payload)
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := New(zap.NewNop().Sugar())
	sub := bus.Subscribe(1)
	sub.Close()
	sub.Close()

	bus.Publish(TopicSidecarLog, "after close")

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestRecentKeepsBoundedHistory(t *testing.T) {
	bus := New(zap.NewNop().Sugar(), WithHistory(3))
	for i := 0; i < 5; i++ {
		bus.Publish(TopicSidecarLog, i)
	}
	bus.Publish(TopicConfigUpdated, "h")

	recent := bus.Recent(0, "")
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[0].Payload)
	assert.Equal(t, "h", recent[2].Payload)

	assert.Len(t, bus.Recent(0, TopicSidecarLog), 2)
	assert.Len(t, bus.Recent(1, ""), 1)
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(TopicSidecarLog, "x") })
}
