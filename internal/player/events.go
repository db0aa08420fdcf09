package player

import "fmt"

// EventType identifies a device lifecycle event.
type EventType int

const (
	EventConnecting EventType = iota
	EventConnected
	EventDisconnected
	EventUpdate
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventUpdate:
		return "update"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted by a Device. Attributes holds the full snapshot for
// Connected, the changed subset for Update and nothing otherwise.
type Event struct {
	Type       EventType
	DeviceID   string
	Attributes Attributes
}

// EventSink receives device events in the order each device emits them.
// HandleEvent runs on the emitting device's goroutine and must not call
// Connect or Disconnect on that device.
type EventSink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function into an EventSink.
type SinkFunc func(Event)

func (f SinkFunc) HandleEvent(event Event) {
	f(event)
}
