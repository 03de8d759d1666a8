package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()

	var got []Event
	id := bus.Subscribe(EventTaskLog, func(e Event) { got = append(got, e) })
	bus.Subscribe(EventRunProgress, func(e Event) { t.Fatalf("wrong topic delivered") })

	bus.Publish(Event{Type: EventTaskLog, CourseID: 7, Payload: "a"})
	bus.Publish(Event{Type: EventTaskLog, CourseID: 7, Payload: "b"})

	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Payload)
	assert.Equal(t, uint(7), got[1].CourseID)

	bus.Unsubscribe(EventTaskLog, id)
	bus.Publish(Event{Type: EventTaskLog, Payload: "c"})
	assert.Len(t, got, 2)
}

func TestInMemoryBusSinkSeesEveryEvent(t *testing.T) {
	bus := NewInMemoryBus()
	var sunk int
	bus.AddSink(func(Event) { sunk++ })

	bus.Publish(Event{Type: EventCourseUpdated})
	bus.deliver(Event{Type: EventCourseUpdated}) // forwarded events skip sinks
	assert.Equal(t, 1, sunk)
}
