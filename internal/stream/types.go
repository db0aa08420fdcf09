package stream

// Message types sent to stream clients.
const (
	TypeEntityChange = "entity_change"
	TypeDeviceState  = "device_state"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeGetEntities  = "get_entities"
)

// EntityChangeMessage reports new attribute values of one entity.
type EntityChangeMessage struct {
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	Kind       string         `json:"kind"`
	Attributes map[string]any `json:"attributes"`
	Timestamp  string         `json:"timestamp"`
}

// DeviceStateMessage reports the hub connection state.
type DeviceStateMessage struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// PingMessage is a keepalive in either direction.
type PingMessage struct {
	Type string `json:"type"`
}

// IncomingMessage is used to parse just the type of a client message.
type IncomingMessage struct {
	Type string `json:"type"`
}

// Status summarizes connected clients.
type Status struct {
	Clients int `json:"clients"`
}
