package audit

import (
	"context"
	"sync"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/driver"
	"github.com/strefethen/dunehd-hub-go/internal/player"
)

// Listener records device lifecycle transitions and failed commands. It
// implements driver.Listener and driver.CommandListener.
//
// A device that keeps failing to reconnect emits a disconnect per attempt;
// only the first one after a connection is recorded.
type Listener struct {
	service *Service

	mu        sync.Mutex
	connected map[string]bool
}

func NewListener(service *Service) *Listener {
	return &Listener{service: service, connected: make(map[string]bool)}
}

func (l *Listener) EntityChanged(change driver.EntityChange) {
	var input WriteEventInput
	switch change.Kind {
	case driver.ChangeAdded:
		input = WriteEventInput{Type: EventDeviceAdded, Message: "Device added: " + change.Name}
	case driver.ChangeRemoved:
		l.mu.Lock()
		delete(l.connected, change.EntityID)
		l.mu.Unlock()
		input = WriteEventInput{Type: EventDeviceRemoved, Message: "Device removed: " + change.Name}
	case driver.ChangeConnected:
		l.mu.Lock()
		l.connected[change.EntityID] = true
		l.mu.Unlock()
		input = WriteEventInput{Type: EventDeviceConnected, Message: "Device connected: " + change.Name}
	case driver.ChangeDisconnected:
		l.mu.Lock()
		wasConnected := l.connected[change.EntityID]
		l.connected[change.EntityID] = false
		l.mu.Unlock()
		if !wasConnected {
			return
		}
		level := EventLevelWarn
		input = WriteEventInput{Type: EventDeviceDisconnected, Level: &level, Message: "Device disconnected: " + change.Name}
	default:
		return
	}

	deviceID := change.EntityID
	input.DeviceID = &deviceID
	l.record(input)
}

func (l *Listener) HubStateChanged(driver.HubState) {}

func (l *Listener) CommandFailed(ctx context.Context, entityID, command string, result player.CommandResult) {
	level := EventLevelError
	message := "Command " + command + " failed: " + result.Code.String()
	if result.Err != nil {
		message += ": " + result.Err.Error()
	}
	input := WriteEventInput{
		Type:     EventCommandFailed,
		Level:    &level,
		DeviceID: &entityID,
		Message:  message,
		Payload: map[string]any{
			"command": command,
			"status":  int(result.Code),
		},
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}
	l.record(input)
}

func (l *Listener) record(input WriteEventInput) {
	if _, err := l.service.RecordEvent(input); err != nil {
		l.service.logger.Printf("AUDIT: %v", err)
	}
}
