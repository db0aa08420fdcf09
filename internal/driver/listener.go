package driver

import (
	"context"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/player"
)

// HubState is the connection state the bridge reports to its clients.
type HubState string

const (
	HubConnected    HubState = "CONNECTED"
	HubConnecting   HubState = "CONNECTING"
	HubDisconnected HubState = "DISCONNECTED"
)

// ChangeKind describes why an entity changed.
type ChangeKind string

const (
	ChangeAdded        ChangeKind = "added"
	ChangeConnected    ChangeKind = "connected"
	ChangeUpdated      ChangeKind = "updated"
	ChangeDisconnected ChangeKind = "disconnected"
	ChangeRemoved      ChangeKind = "removed"
)

// EntityChange is published whenever an entity's attributes change.
// Attributes holds the full snapshot for added and connected changes and
// only the changed keys otherwise. It must not be modified.
type EntityChange struct {
	EntityID   string
	Name       string
	Kind       ChangeKind
	Attributes player.Attributes
	Timestamp  time.Time
}

// Listener receives entity and hub state changes. Calls are made from
// device poll loops and must not block for long.
type Listener interface {
	EntityChanged(change EntityChange)
	HubStateChanged(state HubState)
}

// CommandListener is optionally implemented by listeners interested in
// failed commands. ctx is the context the command ran under.
type CommandListener interface {
	CommandFailed(ctx context.Context, entityID, command string, result player.CommandResult)
}
