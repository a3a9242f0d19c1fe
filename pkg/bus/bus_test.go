package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestBusDelivery(t *testing.T) {
	b := NewBus[string, int](zaptest.NewLogger(t))
	var got []string
	record := func(name string) Handler[int] {
		return func(msg int) {
			got = append(got, name)
		}
	}

	b.Subscribe(record("all"))
	b.Subscribe(record("a"), "a")
	ab := b.Subscribe(record("ab"), "a", "b")
	assert.Equal(t, 3, b.Len())

	b.Publish("a", 1)
	assert.Equal(t, []string{"all", "a", "ab"}, got)

	got = nil
	b.Publish("b", 1)
	assert.Equal(t, []string{"all", "ab"}, got)

	got = nil
	assert.True(t, b.Unsubscribe(ab))
	assert.False(t, b.Unsubscribe(ab))
	b.Publish("b", 1)
	assert.Equal(t, []string{"all"}, got)
	assert.Equal(t, 2, b.Len())
}

func TestBusPanickingHandler(t *testing.T) {
	b := NewBus[string, int](zaptest.NewLogger(t))
	sum := 0
	b.Subscribe(func(int) { panic("boom") })
	b.Subscribe(func(msg int) { sum += msg })

	b.Publish("x", 2)
	b.Publish("x", 3)
	assert.Equal(t, 5, sum)
}

func TestBusUnsubscribeDuringPublish(t *testing.T) {
	b := NewBus[string, int](zaptest.NewLogger(t))
	calls := 0
	var id Subscription
	id = b.Subscribe(func(int) {
		calls++
		b.Unsubscribe(id)
	})
	b.Publish("x", 1)
	b.Publish("x", 1)
	assert.Equal(t, 1, calls)
}
