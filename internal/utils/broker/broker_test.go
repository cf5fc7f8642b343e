package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("usage_update_1")
	other := b.Subscribe("usage_update_2")

	b.Publish("usage_update_1", "hello")

	require.Len(t, a, 1)
	assert.Equal(t, "hello", <-a)
	assert.Len(t, other, 0)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t")

	for i := 0; i < 20; i++ {
		b.Publish("t", i)
	}
	assert.Len(t, ch, cap(ch))
	assert.Equal(t, 0, <-ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t")
	b.Unsubscribe("t", ch)

	_, open := <-ch
	assert.False(t, open)

	b.Publish("t", "ignored")
}
