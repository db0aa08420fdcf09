package driver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/devices"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
	"github.com/strefethen/dunehd-hub-go/internal/player"
)

// DeviceStore is the configured-device source the driver reads from.
type DeviceStore interface {
	List() ([]devices.Device, error)
	Get(deviceID string) (*devices.Device, error)
	MarkSeen(deviceID string)
}

// ClientFactory builds the control client for a player.
type ClientFactory func(identity player.Identity) player.Client

// NewClientFactory returns a factory for HTTP control clients.
func NewClientFactory(timeout time.Duration) ClientFactory {
	return func(identity player.Identity) player.Client {
		return dunehd.NewClient(identity.Address, timeout)
	}
}

type managed struct {
	device *player.Device
	client player.Client
}

// Driver owns the running players, the entity view clients see, and the hub
// connection state. It is the event sink of every player.
//
// Players are never connected or disconnected while mu is held: Disconnect
// waits for the poll loop, and the loop may be blocked in HandleEvent.
type Driver struct {
	logger  *log.Logger
	timing  player.Timing
	factory ClientFactory
	store   DeviceStore

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	players  map[string]*managed
	entities map[string]*entityView
	hubState HubState

	listenersMu sync.RWMutex
	listeners   []Listener
}

func New(store DeviceStore, factory ClientFactory, timing player.Timing, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		logger:   logger,
		timing:   timing,
		factory:  factory,
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
		players:  make(map[string]*managed),
		entities: make(map[string]*entityView),
		hubState: HubDisconnected,
	}
}

// AddListener registers l for entity and hub state changes.
func (d *Driver) AddListener(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Start registers and connects every enabled configured device.
func (d *Driver) Start() error {
	configured, err := d.store.List()
	if err != nil {
		return err
	}
	for _, device := range configured {
		if !device.Enabled {
			continue
		}
		d.configure(device, true)
	}
	d.logger.Printf("DRIVER: started with %d devices", len(configured))
	return nil
}

// Stop disconnects every player and ends all poll loops.
func (d *Driver) Stop() {
	for _, m := range d.allPlayers() {
		m.device.Disconnect()
	}
	d.cancel()
}

// HandleEvent implements player.EventSink.
func (d *Driver) HandleEvent(event player.Event) {
	d.mu.Lock()
	view, ok := d.entities[event.DeviceID]
	if !ok {
		d.mu.Unlock()
		return
	}

	var change *EntityChange
	var hubState HubState
	switch event.Type {
	case player.EventConnecting:
		d.logger.Printf("DRIVER: %s connecting", event.DeviceID)
	case player.EventConnected:
		view.attributes = event.Attributes.Clone()
		change = d.changeLocked(event.DeviceID, view, ChangeConnected, event.Attributes)
		hubState = HubConnected
	case player.EventUpdate:
		view.attributes.Merge(event.Attributes)
		change = d.changeLocked(event.DeviceID, view, ChangeUpdated, event.Attributes)
	case player.EventDisconnected:
		view.attributes[player.AttrState] = player.StateUnavailable
		change = d.changeLocked(event.DeviceID, view, ChangeDisconnected, unavailable())
		hubState = HubDisconnected
	}
	stateChanged := hubState != "" && d.setHubStateLocked(hubState)
	d.mu.Unlock()

	if event.Type == player.EventConnected {
		d.store.MarkSeen(event.DeviceID)
	}
	if change != nil {
		d.publishChange(*change)
	}
	if stateChanged {
		d.publishHubState(hubState)
	}
}

// HubConnect marks the hub connected and connects every player.
func (d *Driver) HubConnect() {
	d.logger.Print("DRIVER: hub connect, connecting device(s)")
	d.setHubState(HubConnected)
	for _, m := range d.allPlayers() {
		m.device.Connect(d.ctx)
	}
}

// HubDisconnect disconnects every player.
func (d *Driver) HubDisconnect() {
	d.logger.Print("DRIVER: hub disconnect, disconnecting device(s)")
	for _, m := range d.allPlayers() {
		m.device.Disconnect()
	}
}

// EnterStandby disconnects every player while the hub sleeps.
func (d *Driver) EnterStandby() {
	d.logger.Print("DRIVER: enter standby, disconnecting device(s)")
	for _, m := range d.allPlayers() {
		m.device.Disconnect()
	}
}

// ExitStandby reconnects every player.
func (d *Driver) ExitStandby() {
	d.logger.Print("DRIVER: exit standby, connecting device(s)")
	for _, m := range d.allPlayers() {
		m.device.Connect(d.ctx)
	}
}

// SubscribeEntities pushes the current attributes of each entity and
// connects its player. Configured devices that are not running yet are
// started. It returns the ids that could not be found.
func (d *Driver) SubscribeEntities(entityIDs []string) []string {
	var missing []string
	for _, entityID := range entityIDs {
		d.mu.Lock()
		m, ok := d.players[entityID]
		var change *EntityChange
		if ok {
			view := d.entities[entityID]
			view.subscribed = true
			change = d.changeLocked(entityID, view, ChangeUpdated, view.attributes.Clone())
		}
		d.mu.Unlock()

		if ok {
			d.publishChange(*change)
			m.device.Connect(d.ctx)
			continue
		}

		device, err := d.store.Get(entityID)
		if err != nil || device == nil || !device.Enabled {
			d.logger.Printf("DRIVER: failed to subscribe entity %s: no device config found", entityID)
			missing = append(missing, entityID)
			continue
		}
		d.configure(*device, true)
		d.mu.Lock()
		if view, ok := d.entities[entityID]; ok {
			view.subscribed = true
		}
		d.mu.Unlock()
	}
	return missing
}

// UnsubscribeEntities disconnects the players of the given entities.
func (d *Driver) UnsubscribeEntities(entityIDs []string) {
	for _, entityID := range entityIDs {
		d.mu.Lock()
		m, ok := d.players[entityID]
		if ok {
			d.entities[entityID].subscribed = false
		}
		d.mu.Unlock()
		if ok {
			m.device.Disconnect()
		}
	}
}

// ConnectEntity starts the poll loop of one player.
func (d *Driver) ConnectEntity(entityID string) bool {
	m := d.player(entityID)
	if m == nil {
		return false
	}
	m.device.Connect(d.ctx)
	return true
}

// DisconnectEntity stops the poll loop of one player.
func (d *Driver) DisconnectEntity(entityID string) bool {
	m := d.player(entityID)
	if m == nil {
		return false
	}
	m.device.Disconnect()
	return true
}

// ExecuteCommand runs a media-player command. found is false for unknown entities.
func (d *Driver) ExecuteCommand(ctx context.Context, entityID, command string, params map[string]any) (result player.CommandResult, found bool) {
	m := d.player(entityID)
	if m == nil {
		return player.CommandResult{}, false
	}

	result = m.device.HandleCommand(ctx, command, params)
	if result.Code != player.StatusOK {
		d.logger.Printf("DRIVER: command %s on %s failed: %s %v", command, entityID, result.Code, result.Err)
		for _, l := range d.snapshotListeners() {
			if cl, ok := l.(CommandListener); ok {
				cl.CommandFailed(ctx, entityID, command, result)
			}
		}
	}
	return result, true
}

// DeviceAdded registers a newly configured or changed device without connecting it.
// A device whose address changed is restarted if it was running.
func (d *Driver) DeviceAdded(device devices.Device) {
	d.logger.Printf("DRIVER: device added: %s (%s) %s", device.Name, device.ID, device.Address)
	d.configure(device, false)
}

// DeviceRemoved disconnects and forgets device, or every device when nil.
func (d *Driver) DeviceRemoved(device *devices.Device) {
	var ids []string
	d.mu.RLock()
	if device == nil {
		d.logger.Print("DRIVER: configuration cleared, disconnecting & removing all devices")
		for id := range d.entities {
			ids = append(ids, id)
		}
	} else {
		ids = append(ids, device.ID)
	}
	d.mu.RUnlock()

	for _, id := range ids {
		d.remove(id)
	}
}

// Entities returns all entities ordered by name.
func (d *Driver) Entities() []Entity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entities := make([]Entity, 0, len(d.entities))
	for id := range d.entities {
		entities = append(entities, d.entityLocked(id))
	}
	sortEntities(entities)
	return entities
}

// Entity returns one entity.
func (d *Driver) Entity(entityID string) (Entity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.entities[entityID]; !ok {
		return Entity{}, false
	}
	return d.entityLocked(entityID), true
}

// HubState returns the current hub connection state.
func (d *Driver) HubState() HubState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hubState
}

// Counts returns the number of connected and registered players.
func (d *Driver) Counts() (connected, total int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.players {
		if m.device.State() == player.Connected {
			connected++
		}
	}
	return connected, len(d.players)
}

func (d *Driver) configure(device devices.Device, connect bool) {
	identity := device.Identity()

	d.mu.Lock()
	existing, ok := d.players[identity.ID]
	if ok && existing.device.Identity() == identity {
		d.mu.Unlock()
		if connect {
			existing.device.Connect(d.ctx)
		}
		return
	}

	client := d.factory(identity)
	m := &managed{
		device: player.NewDevice(identity, client, d, d.timing, d.logger),
		client: client,
	}
	d.players[identity.ID] = m

	view, seen := d.entities[identity.ID]
	if !seen {
		view = &entityView{attributes: player.DefaultAttributes()}
		d.entities[identity.ID] = view
	}
	view.name = identity.Name
	view.address = identity.Address
	var change *EntityChange
	if !seen {
		change = d.changeLocked(identity.ID, view, ChangeAdded, view.attributes.Clone())
	}
	d.mu.Unlock()

	if change != nil {
		d.logger.Printf("DRIVER: adding new Dune-HD device: %s (%s) %s", identity.Name, identity.ID, identity.Address)
		d.publishChange(*change)
	}

	wasRunning := false
	if ok {
		wasRunning = existing.device.Running()
		existing.device.Disconnect()
		closeClient(existing.client)
	}
	if connect || wasRunning {
		m.device.Connect(d.ctx)
	}
}

func (d *Driver) remove(entityID string) {
	d.mu.Lock()
	m, ok := d.players[entityID]
	view, hasView := d.entities[entityID]
	delete(d.players, entityID)
	delete(d.entities, entityID)
	var change *EntityChange
	if hasView {
		change = d.changeLocked(entityID, view, ChangeRemoved, unavailable())
	}
	d.mu.Unlock()

	if ok {
		d.logger.Printf("DRIVER: disconnecting & removing device %s", entityID)
		m.device.Disconnect()
		closeClient(m.client)
	}
	if change != nil {
		d.publishChange(*change)
	}
}

func (d *Driver) player(entityID string) *managed {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.players[entityID]
}

func (d *Driver) allPlayers() []*managed {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*managed, 0, len(d.players))
	for _, m := range d.players {
		out = append(out, m)
	}
	return out
}

func (d *Driver) entityLocked(entityID string) Entity {
	view := d.entities[entityID]
	entity := Entity{
		ID:         entityID,
		Name:       view.name,
		Address:    view.address,
		Subscribed: view.subscribed,
		Connection: player.Disconnected,
		Attributes: view.attributes.Clone(),
	}
	if m, ok := d.players[entityID]; ok {
		entity.Connection = m.device.State()
	}
	return entity
}

func (d *Driver) changeLocked(entityID string, view *entityView, kind ChangeKind, attrs player.Attributes) *EntityChange {
	return &EntityChange{
		EntityID:   entityID,
		Name:       view.name,
		Kind:       kind,
		Attributes: attrs,
		Timestamp:  time.Now(),
	}
}

func (d *Driver) setHubState(state HubState) {
	d.mu.Lock()
	changed := d.setHubStateLocked(state)
	d.mu.Unlock()
	if changed {
		d.publishHubState(state)
	}
}

func (d *Driver) setHubStateLocked(state HubState) bool {
	if d.hubState == state {
		return false
	}
	d.hubState = state
	return true
}

func (d *Driver) snapshotListeners() []Listener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]Listener(nil), d.listeners...)
}

func (d *Driver) publishChange(change EntityChange) {
	for _, l := range d.snapshotListeners() {
		l.EntityChanged(change)
	}
}

func (d *Driver) publishHubState(state HubState) {
	d.logger.Printf("DRIVER: hub state %s", state)
	for _, l := range d.snapshotListeners() {
		l.HubStateChanged(state)
	}
}

func closeClient(client player.Client) {
	if closer, ok := client.(interface{ Close() }); ok {
		closer.Close()
	}
}
