package mqtt

import "strings"

// Topics builds the topic names published by the bridge.
//
//	<prefix>/bridge/status          online/offline (retained, LWT)
//	<prefix>/bridge/state           hub state (retained)
//	<prefix>/<entity>/attributes    full attribute snapshot (retained)
//	<prefix>/<entity>/availability  online/offline (retained)
type Topics struct {
	Prefix string
}

func (t Topics) BridgeStatus() string {
	return t.Prefix + "/bridge/status"
}

func (t Topics) BridgeState() string {
	return t.Prefix + "/bridge/state"
}

func (t Topics) Attributes(entityID string) string {
	return t.Prefix + "/" + topicSegment(entityID) + "/attributes"
}

func (t Topics) Availability(entityID string) string {
	return t.Prefix + "/" + topicSegment(entityID) + "/availability"
}

// topicSegment strips MQTT wildcard and separator characters from an id.
func topicSegment(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, id)
}
