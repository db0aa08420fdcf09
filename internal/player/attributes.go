package player

// Attribute names a media-player entity attribute.
type Attribute string

const (
	AttrState         Attribute = "state"
	AttrMediaType     Attribute = "media_type"
	AttrMediaDuration Attribute = "media_duration"
	AttrMediaPosition Attribute = "media_position"
	AttrMediaTitle    Attribute = "media_title"
	AttrMediaImageURL Attribute = "media_image_url"
	AttrVolume        Attribute = "volume"
	AttrMuted         Attribute = "muted"
)

// State is the hub-visible player state.
type State string

const (
	StateUnavailable State = "UNAVAILABLE"
	StateOn          State = "ON"
	StateOff         State = "OFF"
	StatePlaying     State = "PLAYING"
	StatePaused      State = "PAUSED"
	StateBuffering   State = "BUFFERING"
)

// MediaTypeVideo is the only media type the player reports.
const MediaTypeVideo = "VIDEO"

// EmptyImage is a transparent 2x2 PNG shown when no artwork is available.
const EmptyImage = "data:image/png;base64," +
	"iVBORw0KGgoAAAANSUhEUgAAAAIAAAACCAYAAABytg0k" +
	"AAAAAXNSR0IArs4c6QAAAAlwSFlzAAAWJQAAFiUBSVIk8AAAABNJREFUCB1jZGBg+A/" +
	"EDEwgAgQADigBA//q6GsAAAAASUVORK5CYII%3D"

// Attributes is a set of attribute values. A full snapshot carries every
// attribute; diffs and updates carry a subset.
//
// Value types: state State, media_type/media_title/media_image_url string,
// media_duration/media_position/volume int, muted bool.
type Attributes map[Attribute]any

// DefaultAttributes is the snapshot of a device that has never been polled.
func DefaultAttributes() Attributes {
	return Attributes{
		AttrState:         StateUnavailable,
		AttrMediaType:     "",
		AttrMediaDuration: 0,
		AttrMediaPosition: 0,
		AttrMediaTitle:    "",
		AttrMediaImageURL: EmptyImage,
		AttrVolume:        0,
		AttrMuted:         false,
	}
}

// State returns the state attribute, StateUnavailable when unset.
func (a Attributes) State() State {
	if state, ok := a[AttrState].(State); ok {
		return state
	}
	return StateUnavailable
}

// Clone returns a shallow copy. Values are immutable scalars.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for key, value := range a {
		out[key] = value
	}
	return out
}

// Merge overwrites a's values with changed and returns a.
func (a Attributes) Merge(changed Attributes) Attributes {
	for key, value := range changed {
		a[key] = value
	}
	return a
}

// ToMap converts to a plain string-keyed map for JSON encoding.
func (a Attributes) ToMap() map[string]any {
	out := make(map[string]any, len(a))
	for key, value := range a {
		out[string(key)] = value
	}
	return out
}
