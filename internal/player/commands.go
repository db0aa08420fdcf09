package player

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

// Media-player command identifiers accepted by HandleCommand.
const (
	CmdOn             = "on"
	CmdOff            = "off"
	CmdPlayPause      = "play_pause"
	CmdStop           = "stop"
	CmdNext           = "next"
	CmdPrevious       = "previous"
	CmdVolume         = "volume"
	CmdVolumeUp       = "volume_up"
	CmdVolumeDown     = "volume_down"
	CmdMuteToggle     = "mute_toggle"
	CmdCursorUp       = "cursor_up"
	CmdCursorDown     = "cursor_down"
	CmdCursorLeft     = "cursor_left"
	CmdCursorRight    = "cursor_right"
	CmdCursorEnter    = "cursor_enter"
	CmdBack           = "back"
	CmdHome           = "home"
	CmdContextMenu    = "context_menu"
	CmdInfo           = "info"
	CmdSeek           = "seek"
	CmdChannelUp      = "channel_up"
	CmdChannelDown    = "channel_down"
	CmdAudioTrack     = "audio_track"
	CmdSubtitle       = "subtitle"
	CmdFunctionRed    = "function_red"
	CmdFunctionGreen  = "function_green"
	CmdFunctionYellow = "function_yellow"
	CmdFunctionBlue   = "function_blue"
	CmdFastForward    = "fast_forward"
	CmdRewind         = "rewind"

	// Simple commands specific to Dune-HD players.
	CmdBlackScreen = "BLACK_SCREEN"
	CmdMainScreen  = "MAIN_SCREEN"
)

// SimpleCommands lists the device-specific commands exposed to the hub.
var SimpleCommands = []string{CmdBlackScreen, CmdMainScreen}

// irCommands are commands that map directly to a remote control key.
var irCommands = map[string]dunehd.IRCode{
	CmdOn:          dunehd.IRPowerOn,
	CmdOff:         dunehd.IRPowerOff,
	CmdPlayPause:   dunehd.IRPlayPause,
	CmdStop:        dunehd.IRStop,
	CmdNext:        dunehd.IRNext,
	CmdPrevious:    dunehd.IRPrev,
	CmdVolumeUp:    dunehd.IRVolumeUp,
	CmdVolumeDown:  dunehd.IRVolumeDown,
	CmdMuteToggle:  dunehd.IRMute,
	CmdCursorUp:    dunehd.IRUp,
	CmdCursorDown:  dunehd.IRDown,
	CmdCursorLeft:  dunehd.IRLeft,
	CmdCursorRight: dunehd.IRRight,
	CmdCursorEnter: dunehd.IREnter,
	CmdBack:        dunehd.IRReturn,
	CmdHome:        dunehd.IRTopMenu,
	CmdContextMenu: dunehd.IRPopupMenu,
	CmdInfo:        dunehd.IRInfo,
	CmdChannelUp:   dunehd.IRProgramUp,
	CmdChannelDown: dunehd.IRProgramDown,
	CmdAudioTrack:  dunehd.IRAudio,
	CmdSubtitle:    dunehd.IRSubtitle,
	CmdFastForward: dunehd.IRForward,
	CmdRewind:      dunehd.IRRewind,
	// Color functions are sent as the A-D keys.
	CmdFunctionBlue:   dunehd.IRA,
	CmdFunctionGreen:  dunehd.IRB,
	CmdFunctionRed:    dunehd.IRC,
	CmdFunctionYellow: dunehd.IRD,
}

var simpleCommands = map[string]dunehd.Command{
	CmdBlackScreen: dunehd.CommandBlackScreen,
	CmdMainScreen:  dunehd.CommandMainScreen,
}

func init() {
	for digit, code := range dunehd.DigitCodes {
		irCommands["digit_"+strconv.Itoa(digit)] = code
	}
}

// SupportedCommands returns every command id HandleCommand understands.
func SupportedCommands() []string {
	out := make([]string, 0, len(irCommands)+len(simpleCommands)+2)
	for id := range irCommands {
		out = append(out, id)
	}
	for id := range simpleCommands {
		out = append(out, id)
	}
	return append(out, CmdVolume, CmdSeek)
}

// StatusCode is the hub-facing outcome of a command.
type StatusCode int

const (
	StatusOK             StatusCode = 200
	StatusBadRequest     StatusCode = 400
	StatusTimeout        StatusCode = 408
	StatusConflict       StatusCode = 409
	StatusServerError    StatusCode = 500
	StatusNotImplemented StatusCode = 501
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusConflict:
		return "CONFLICT"
	case StatusServerError:
		return "SERVER_ERROR"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "STATUS_" + strconv.Itoa(int(c))
	}
}

// CommandResult describes how a command was handled.
type CommandResult struct {
	Code StatusCode
	// Err is the transport or device error behind a non-OK code, if any.
	Err error
}

// HandleCommand forwards a hub command to the player.
func (d *Device) HandleCommand(ctx context.Context, cmdID string, params map[string]any) CommandResult {
	var (
		status *dunehd.Status
		err    error
	)

	if code, ok := irCommands[cmdID]; ok {
		status, err = d.client.SendIRCode(ctx, code)
	} else if cmd, ok := simpleCommands[cmdID]; ok {
		status, err = d.client.SendCommand(ctx, cmd, nil)
	} else {
		switch cmdID {
		case CmdVolume:
			level, perr := intParam(params, "volume")
			if perr != nil {
				return CommandResult{Code: StatusBadRequest, Err: perr}
			}
			status, err = d.client.SetVolume(ctx, level)
		case CmdSeek:
			position, perr := intParam(params, "media_position")
			if perr != nil {
				return CommandResult{Code: StatusBadRequest, Err: perr}
			}
			status, err = d.client.Seek(ctx, position)
		default:
			return CommandResult{Code: StatusNotImplemented, Err: fmt.Errorf("unsupported command %q", cmdID)}
		}
	}

	if err != nil {
		d.logger.Printf("[%s] Error for cmd %s: %v", d.identity.LogID(), cmdID, err)
		return CommandResult{Code: StatusServerError, Err: err}
	}
	return d.resultForStatus(cmdID, status)
}

func (d *Device) resultForStatus(cmdID string, status *dunehd.Status) CommandResult {
	switch status.CommandStatus {
	case dunehd.CommandStatusFailed:
		err := fmt.Errorf("command %s failed: %s: %s", cmdID, status.ErrorKind, status.ErrorDescription)
		d.logger.Printf("[%s] Command status failed - %s: %s", d.identity.LogID(), status.ErrorKind, status.ErrorDescription)
		switch status.ErrorKind {
		case dunehd.ErrorKindInvalidParameters:
			return CommandResult{Code: StatusBadRequest, Err: err}
		case dunehd.ErrorKindUnknownCommand:
			return CommandResult{Code: StatusNotImplemented, Err: err}
		case dunehd.ErrorKindIllegalState:
			return CommandResult{Code: StatusConflict, Err: err}
		default:
			return CommandResult{Code: StatusServerError, Err: err}
		}
	case dunehd.CommandStatusTimeout:
		return CommandResult{Code: StatusTimeout, Err: fmt.Errorf("command %s timed out on device", cmdID)}
	default:
		return CommandResult{Code: StatusOK}
	}
}

// intParam reads an integer parameter. Values outside the int32 range are
// rejected rather than truncated on the way to the device.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing parameter %q", key)
	}

	var value int64
	switch v := raw.(type) {
	case int:
		value = int64(v)
	case int64:
		value = v
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("parameter %q must be an integer", key)
		}
		value = int64(v)
	case json.Number:
		parsed, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be an integer", key)
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be an integer", key)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("parameter %q must be an integer", key)
	}

	if value < math.MinInt32 || value > math.MaxInt32 {
		return 0, fmt.Errorf("parameter %q is out of range", key)
	}
	return int(value), nil
}
