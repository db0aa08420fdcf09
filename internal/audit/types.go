package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventDeviceAdded        EventType = "DEVICE_ADDED"
	EventDeviceRemoved      EventType = "DEVICE_REMOVED"
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventCommandFailed      EventType = "COMMAND_FAILED"
	EventSystemStartup      EventType = "SYSTEM_STARTUP"
	EventSystemShutdown     EventType = "SYSTEM_SHUTDOWN"
)

// validEventTypes lists the types accepted by the type filter.
var validEventTypes = map[string]bool{
	string(EventDeviceAdded):        true,
	string(EventDeviceRemoved):      true,
	string(EventDeviceConnected):    true,
	string(EventDeviceDisconnected): true,
	string(EventCommandFailed):      true,
	string(EventSystemStartup):      true,
	string(EventSystemShutdown):     true,
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t string) bool {
	return validEventTypes[t]
}

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// validEventLevels maps query values to levels.
var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}
