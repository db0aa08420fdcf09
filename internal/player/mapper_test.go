package player

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

func fileURL(path string) string { return "http://dune" + path }

func intPtr(v int) *dunehd.Int {
	i := dunehd.Int(v)
	return &i
}

func boolPtr(v bool) *dunehd.Bool {
	b := dunehd.Bool(v)
	return &b
}

func TestAttributesForStatusState(t *testing.T) {
	cases := []struct {
		name     string
		status   dunehd.Status
		previous State
		want     State
	}{
		{
			name:   "standby wins over playback",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateStandby, PlaybackState: dunehd.PlaybackStatePlaying, PlaybackIsBuffering: boolPtr(true)},
			want:   StateOff,
		},
		{
			name:   "buffering flag",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStatePlaying, PlaybackIsBuffering: boolPtr(true)},
			want:   StateBuffering,
		},
		{
			name:   "initializing",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStateInitializing},
			want:   StateBuffering,
		},
		{
			name:   "playing",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStatePlaying},
			want:   StatePlaying,
		},
		{
			name:   "paused",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateBlurayPlayback, PlaybackState: dunehd.PlaybackStatePaused},
			want:   StatePaused,
		},
		{
			name:     "seeking keeps previous",
			status:   dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStateSeeking},
			previous: StatePaused,
			want:     StatePaused,
		},
		{
			name:   "navigator",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateNavigator},
			want:   StateOn,
		},
		{
			name:   "stopped",
			status: dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStateStopped},
			want:   StateOn,
		},
		{
			name:   "unknown player state",
			status: dunehd.Status{PlayerState: "karaoke"},
			want:   StateOn,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attrs := AttributesForStatus(&tc.status, tc.previous, fileURL)
			require.Equal(t, tc.want, attrs[AttrState])
		})
	}
}

func TestAttributesForStatusStandbyAlwaysOff(t *testing.T) {
	for _, playback := range []dunehd.PlaybackState{"", dunehd.PlaybackStateSeeking, dunehd.PlaybackStateInitializing, dunehd.PlaybackStatePaused} {
		status := dunehd.Status{PlayerState: dunehd.PlayerStateStandby, PlaybackState: playback}
		require.Equal(t, StateOff, AttributesForStatus(&status, StatePlaying, fileURL).State())
	}
}

func TestAttributesForStatusDefaults(t *testing.T) {
	status := dunehd.Status{PlayerState: dunehd.PlayerStateNavigator, PlaybackVolume: 30}

	attrs := AttributesForStatus(&status, StateUnavailable, fileURL)
	require.Equal(t, Attributes{
		AttrState:         StateOn,
		AttrMediaType:     "",
		AttrMediaDuration: 0,
		AttrMediaPosition: 0,
		AttrMediaTitle:    "",
		AttrMediaImageURL: EmptyImage,
		AttrVolume:        30,
		AttrMuted:         false,
	}, attrs)
}

func TestAttributesForStatusPlayback(t *testing.T) {
	status := dunehd.Status{
		PlayerState:      dunehd.PlayerStateFilePlayback,
		PlaybackState:    dunehd.PlaybackStatePlaying,
		PlaybackDuration: intPtr(7200),
		PlaybackPosition: intPtr(12),
		PlaybackCaption:  "Sintel",
		PlaybackPicture:  "/poster.jpg",
		PlaybackVolume:   80,
		PlaybackMute:     true,
		UIState:          &dunehd.UIState{Screen: &dunehd.UIScreen{BackgroundURL: "/bg.jpg"}},
	}

	attrs := AttributesForStatus(&status, StateOn, fileURL)
	require.Equal(t, StatePlaying, attrs[AttrState])
	require.Equal(t, MediaTypeVideo, attrs[AttrMediaType])
	require.Equal(t, 7200, attrs[AttrMediaDuration])
	require.Equal(t, 12, attrs[AttrMediaPosition])
	require.Equal(t, "Sintel", attrs[AttrMediaTitle])
	require.Equal(t, "http://dune/poster.jpg", attrs[AttrMediaImageURL])
	require.Equal(t, 80, attrs[AttrVolume])
	require.Equal(t, true, attrs[AttrMuted])
}

func TestAttributesForStatusImageFallbacks(t *testing.T) {
	background := &dunehd.UIState{Screen: &dunehd.UIScreen{BackgroundURL: "/bg.jpg"}}

	withBackground := dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStatePaused, UIState: background}
	require.Equal(t, "http://dune/bg.jpg", AttributesForStatus(&withBackground, StateOn, fileURL)[AttrMediaImageURL])

	noPlayback := dunehd.Status{PlayerState: dunehd.PlayerStateNavigator, PlaybackPicture: "/poster.jpg", UIState: background}
	require.Equal(t, EmptyImage, AttributesForStatus(&noPlayback, StateOn, fileURL)[AttrMediaImageURL])

	emptyScreen := dunehd.Status{PlayerState: dunehd.PlayerStateFilePlayback, PlaybackState: dunehd.PlaybackStatePlaying, UIState: &dunehd.UIState{}}
	require.Equal(t, EmptyImage, AttributesForStatus(&emptyScreen, StateOn, fileURL)[AttrMediaImageURL])
}
