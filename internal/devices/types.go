package devices

import (
	"errors"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/player"
)

// ErrNotDuneHD is returned when a host answers but does not identify itself
// as a Dune-HD player.
var ErrNotDuneHD = errors.New("device did not report a serial number")

// ErrInvalidInput marks rejected user input.
var ErrInvalidInput = errors.New("invalid input")

// Device is a configured Dune-HD player.
type Device struct {
	ID              string
	Name            string
	Address         string
	ProductID       string
	FirmwareVersion string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSeenAt      *time.Time
}

// Identity returns the runtime identity used by the poll loop.
func (d Device) Identity() player.Identity {
	return player.Identity{ID: d.ID, Name: d.Name, Address: d.Address}
}

// UpdateInput holds the mutable fields of a Device. Nil fields are left as is.
type UpdateInput struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// RescanResult summarizes one discovery run.
type RescanResult struct {
	Found      []Device
	Candidates int
	DurationMs int64
}

// AddedHandler is notified when a device is configured or changed.
type AddedHandler func(Device)

// RemovedHandler is notified when a device is removed. A nil device means
// every device was removed.
type RemovedHandler func(*Device)
