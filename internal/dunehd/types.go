package dunehd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Command names accepted by /cgi-bin/do.
type Command string

const (
	CommandGetStatus        Command = "status"
	CommandUIState          Command = "ui_state"
	CommandSetPlaybackState Command = "set_playback_state"
	CommandIRCode           Command = "ir_code"
	CommandStandby          Command = "standby"
	CommandBlackScreen      Command = "black_screen"
	CommandMainScreen       Command = "main_screen"
	CommandGetFile          Command = "get_file"
	CommandLaunchMediaURL   Command = "launch_media_url"
)

// PlayerState is the top-level mode the player reports.
type PlayerState string

const (
	PlayerStateNavigator      PlayerState = "navigator"
	PlayerStateFilePlayback   PlayerState = "file_playback"
	PlayerStateDVDPlayback    PlayerState = "dvd_playback"
	PlayerStateBlurayPlayback PlayerState = "bluray_playback"
	PlayerStateBlackScreen    PlayerState = "black_screen"
	PlayerStateStandby        PlayerState = "standby"
	PlayerStateOSDScreen      PlayerState = "osd_screen"
)

// PlaybackState is the playback sub-state; empty when nothing is loaded.
type PlaybackState string

const (
	PlaybackStateInitializing   PlaybackState = "initializing"
	PlaybackStatePlaying        PlaybackState = "playing"
	PlaybackStatePaused         PlaybackState = "paused"
	PlaybackStateSeeking        PlaybackState = "seeking"
	PlaybackStateDeinitializing PlaybackState = "deinitializing"
	PlaybackStateStopped        PlaybackState = "stopped"
)

// CommandStatus is the device's verdict on the command it just ran.
type CommandStatus string

const (
	CommandStatusOK      CommandStatus = "ok"
	CommandStatusFailed  CommandStatus = "failed"
	CommandStatusTimeout CommandStatus = "timeout"
)

// ErrorKind qualifies a failed command status.
type ErrorKind string

const (
	ErrorKindUnknownCommand    ErrorKind = "unknown_command"
	ErrorKindInvalidParameters ErrorKind = "invalid_parameters"
	ErrorKindIllegalState      ErrorKind = "illegal_state"
	ErrorKindInternalError     ErrorKind = "internal_error"
	ErrorKindOperationFailed   ErrorKind = "operation_failed"
)

// Playback speeds are expressed in 1/256 units.
const (
	PlaybackSpeedStopped = 0
	PlaybackSpeedNormal  = 256
)

// UIScreen holds artwork references of the current screen.
type UIScreen struct {
	BackgroundURL string `json:"bg_url,omitempty"`
	PosterURL     string `json:"poster_url,omitempty"`
}

// UIState is only populated for the ui_state command.
type UIState struct {
	Screen *UIScreen `json:"screen,omitempty"`
}

// Status is the parsed response of every JSON command.
type Status struct {
	CommandStatus         CommandStatus `json:"command_status,omitempty"`
	ErrorKind             ErrorKind     `json:"error_kind,omitempty"`
	ErrorDescription      string        `json:"error_description,omitempty"`
	PlayerState           PlayerState   `json:"player_state"`
	PlaybackURL           string        `json:"playback_url,omitempty"`
	PlaybackState         PlaybackState `json:"playback_state,omitempty"`
	PreviousPlaybackState PlaybackState `json:"previous_playback_state,omitempty"`
	PlaybackSpeed         *Int          `json:"playback_speed,omitempty"`
	PlaybackDuration      *Int          `json:"playback_duration,omitempty"`
	PlaybackPosition      *Int          `json:"playback_position,omitempty"`
	PlaybackIsBuffering   *Bool         `json:"playback_is_buffering,omitempty"`
	PlaybackVolume        Int           `json:"playback_volume"`
	PlaybackMute          Bool          `json:"playback_mute"`
	PlaybackCaption       string        `json:"playback_caption,omitempty"`
	PlaybackExtraCaption  string        `json:"playback_extra_caption,omitempty"`
	PlaybackPicture       string        `json:"playback_picture,omitempty"`
	ProtocolVersion       *Int          `json:"protocol_version,omitempty"`
	ProductID             string        `json:"product_id,omitempty"`
	ProductName           string        `json:"product_name,omitempty"`
	SerialNumber          string        `json:"serial_number,omitempty"`
	CommercialSerial      string        `json:"commercial_serial_number,omitempty"`
	FirmwareVersion       string        `json:"firmware_version,omitempty"`
	UIState               *UIState      `json:"ui_state,omitempty"`

	// Raw keeps the decoded payload for diagnostics.
	Raw map[string]any `json:"-"`
}

// Buffering reports the buffering flag, false when absent.
func (s *Status) Buffering() bool {
	return s.PlaybackIsBuffering != nil && bool(*s.PlaybackIsBuffering)
}

// BackgroundURL returns the UI background reference, empty when absent.
func (s *Status) BackgroundURL() string {
	if s.UIState == nil || s.UIState.Screen == nil {
		return ""
	}
	return s.UIState.Screen.BackgroundURL
}

// IntValue dereferences an optional integer, zero when absent.
func IntValue(v *Int) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

// Int decodes integers that the firmware sends either as numbers or strings.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	text := strings.TrimSpace(strings.Trim(string(data), `"`))
	if text == "" {
		*i = 0
		return nil
	}
	parsed, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*i = Int(parsed)
	return nil
}

// Bool decodes booleans sent as true/false, 0/1 or their string forms.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "1", "true", "yes", "on":
		*b = true
	case "0", "false", "no", "off", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}
