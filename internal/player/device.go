package player

import (
	"context"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

// ConnectionState is the connection status of a Device.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// Identity identifies one configured player.
type Identity struct {
	ID      string
	Name    string
	Address string
}

// LogID is the name used in log lines.
func (i Identity) LogID() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID
}

// Client is the subset of *dunehd.Client a Device needs.
type Client interface {
	UIState(ctx context.Context) (*dunehd.Status, error)
	SendCommand(ctx context.Context, cmd dunehd.Command, params url.Values) (*dunehd.Status, error)
	SendIRCode(ctx context.Context, code dunehd.IRCode) (*dunehd.Status, error)
	SetVolume(ctx context.Context, level int) (*dunehd.Status, error)
	Seek(ctx context.Context, position int) (*dunehd.Status, error)
	FileURL(path string) string
}

// Snapshot is a consistent view of a device's connection state and attributes.
type Snapshot struct {
	State      ConnectionState
	Attributes Attributes
}

// Device runs the poll loop of a single player and reports lifecycle
// events to its sink. State and attributes are written only by the loop
// (and by Disconnect once the loop has stopped) and can be read at any time.
type Device struct {
	identity Identity
	client   Client
	sink     EventSink
	timing   Timing
	logger   *log.Logger
	sleep    func(context.Context, time.Duration) bool

	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDevice creates a disconnected device.
func NewDevice(identity Identity, client Client, sink EventSink, timing Timing, logger *log.Logger) *Device {
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	d := &Device{
		identity: identity,
		client:   client,
		sink:     sink,
		timing:   timing,
		logger:   logger,
		sleep:    sleepContext,
	}
	d.current.Store(&Snapshot{State: Disconnected, Attributes: DefaultAttributes()})
	return d
}

func (d *Device) Identity() Identity { return d.identity }

func (d *Device) ID() string { return d.identity.ID }

// Snapshot returns the latest consistent state and attributes pair.
// The returned attributes must not be modified.
func (d *Device) Snapshot() Snapshot {
	return *d.current.Load()
}

func (d *Device) State() ConnectionState {
	return d.current.Load().State
}

// Attributes returns a copy of the last known attributes.
func (d *Device) Attributes() Attributes {
	return d.current.Load().Attributes.Clone()
}

// Connect starts the poll loop unless one is already running. ctx bounds
// the lifetime of the loop; it should outlive the caller's request.
func (d *Device) Connect(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		select {
		case <-d.done:
			// The previous loop ended with its parent context.
		default:
			return
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done

	go func() {
		defer close(done)
		d.run(loopCtx)
	}()
}

// Disconnect stops the poll loop, if any, and always reports Disconnected.
// It returns after the loop has exited.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
		d.done = nil
	}

	d.store(Disconnected, d.current.Load().Attributes)
	d.emit(EventDisconnected, nil)
}

// Running reports whether a poll loop is active.
func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *Device) run(ctx context.Context) {
	// Connected holds only while the loop is polling. Disconnect owns the
	// event; a loop ended by its parent context leaves the state quietly.
	defer func() { d.store(Disconnected, d.current.Load().Attributes) }()

	d.logger.Printf("[%s] Connecting (attempt 1)...", d.identity.LogID())
	d.store(Connecting, d.current.Load().Attributes)
	d.emit(EventConnecting, nil)
	attempt := 1

	for {
		start := time.Now()
		status, err := d.client.UIState(ctx)
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		if err == nil {
			d.applyStatus(status)
			attempt = 1
			delay = d.timing.PollInterval
		} else {
			if d.State() == Connected {
				d.logger.Printf("[%s] Disconnected: %v", d.identity.LogID(), err)
				d.store(Connecting, d.current.Load().Attributes)
				attempt = 1
				d.emit(EventDisconnected, nil)
				d.emit(EventConnecting, nil)
			} else {
				attempt++
			}
			delay = d.timing.RetryDelay(attempt, time.Since(start))
			d.logger.Printf("[%s] Connecting (attempt %d) in %s...", d.identity.LogID(), attempt, delay.Round(time.Millisecond))
		}

		if !d.sleep(ctx, delay) {
			return
		}
	}
}

func (d *Device) applyStatus(status *dunehd.Status) {
	previous := d.current.Load()
	attrs := AttributesForStatus(status, previous.Attributes.State(), d.client.FileURL)

	if previous.State != Connected {
		d.logger.Printf("[%s] Connected", d.identity.LogID())
		d.store(Connected, attrs)
		d.emit(EventConnected, attrs.Clone())
		return
	}

	changed := ChangedAttributes(previous.Attributes, attrs)
	d.store(Connected, attrs)
	if len(changed) > 0 {
		d.emit(EventUpdate, changed)
	}
}

func (d *Device) store(state ConnectionState, attrs Attributes) {
	d.current.Store(&Snapshot{State: state, Attributes: attrs})
}

func (d *Device) emit(eventType EventType, attrs Attributes) {
	d.sink.HandleEvent(Event{Type: eventType, DeviceID: d.identity.ID, Attributes: attrs})
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
