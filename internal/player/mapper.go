package player

import "github.com/strefethen/dunehd-hub-go/internal/dunehd"

// FileURLFunc turns a path on the player into a fetchable URL.
type FileURLFunc func(path string) string

// AttributesForStatus maps a device status to a full attribute snapshot.
// previous is the currently displayed state; it is kept while seeking.
func AttributesForStatus(status *dunehd.Status, previous State, fileURL FileURLFunc) Attributes {
	playbackActive := status.PlaybackState != ""

	mediaType := ""
	if playbackActive {
		mediaType = MediaTypeVideo
	}

	image := EmptyImage
	switch {
	case playbackActive && status.PlaybackPicture != "":
		image = fileURL(status.PlaybackPicture)
	case playbackActive && status.BackgroundURL() != "":
		image = fileURL(status.BackgroundURL())
	}

	return Attributes{
		AttrState:         stateForStatus(status, previous),
		AttrMediaType:     mediaType,
		AttrMediaDuration: dunehd.IntValue(status.PlaybackDuration),
		AttrMediaPosition: dunehd.IntValue(status.PlaybackPosition),
		AttrMediaTitle:    status.PlaybackCaption,
		AttrMediaImageURL: image,
		AttrVolume:        int(status.PlaybackVolume),
		AttrMuted:         bool(status.PlaybackMute),
	}
}

func stateForStatus(status *dunehd.Status, previous State) State {
	switch {
	case status.PlayerState == dunehd.PlayerStateStandby:
		return StateOff
	case status.Buffering() || status.PlaybackState == dunehd.PlaybackStateInitializing:
		return StateBuffering
	case status.PlaybackState == dunehd.PlaybackStatePlaying:
		return StatePlaying
	case status.PlaybackState == dunehd.PlaybackStatePaused:
		return StatePaused
	case status.PlaybackState == dunehd.PlaybackStateSeeking:
		return previous
	default:
		return StateOn
	}
}
