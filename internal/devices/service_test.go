package devices

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dunehd-hub-go/internal/config"
	"github.com/strefethen/dunehd-hub-go/internal/discovery"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

type fakeNetwork struct {
	mu      sync.Mutex
	players map[string]*dunehd.Status
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{players: map[string]*dunehd.Status{}}
}

func (n *fakeNetwork) add(address, serial, product string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.players[address] = &dunehd.Status{
		PlayerState:     dunehd.PlayerStateNavigator,
		SerialNumber:    serial,
		ProductName:     product,
		ProductID:       "tv175y",
		FirmwareVersion: "fw1",
	}
}

func (n *fakeNetwork) probe(ctx context.Context, address string) (*dunehd.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	status, ok := n.players[address]
	if !ok {
		return nil, &dunehd.UnreachableError{Command: dunehd.CommandGetStatus, Err: errors.New("connection refused")}
	}
	return status, nil
}

func testConfig() config.Config {
	return config.Config{
		DuneHDTimeoutMs:        500,
		SSDPDiscoveryTimeoutMs: 100,
		SSDPDiscoveryPasses:    1,
	}
}

func newTestService(t *testing.T, network *fakeNetwork) *Service {
	t.Helper()
	service := NewService(testConfig(), setupTestDB(t), log.New(testWriter{t}, "", 0))
	service.SetProbe(network.probe)
	return service
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestService_Probe(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune HD Pro 4K")
	service := newTestService(t, network)

	device, err := service.Probe(context.Background(), " 10.0.0.5 ")
	require.NoError(t, err)
	require.Equal(t, "SN1", device.ID)
	require.Equal(t, "Dune HD Pro 4K", device.Name)
	require.Equal(t, "10.0.0.5", device.Address)

	stored, err := service.Get("SN1")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestService_ProbeErrors(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.6", "", "Some Renderer")
	service := newTestService(t, network)

	_, err := service.Probe(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.Probe(context.Background(), "10.0.0.6")
	require.ErrorIs(t, err, ErrNotDuneHD)

	_, err = service.Probe(context.Background(), "10.0.0.7")
	require.True(t, dunehd.IsTransportError(err))

	service.SetProbe(func(ctx context.Context, address string) (*dunehd.Status, error) {
		return nil, &dunehd.ParseError{Command: dunehd.CommandGetStatus, Err: errors.New("not json")}
	})
	_, err = service.Probe(context.Background(), "10.0.0.8")
	require.ErrorIs(t, err, ErrNotDuneHD)
}

func TestService_ConfigureNotifies(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune HD Pro 4K")
	service := newTestService(t, network)

	var added []Device
	service.OnAdded(func(device Device) { added = append(added, device) })

	device, created, err := service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "SN1", device.ID)

	_, created, err = service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	require.False(t, created)
	require.Len(t, added, 2)
}

func TestService_ConfigureReplacesStaleAddress(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Old")
	service := newTestService(t, network)

	_, _, err := service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)

	var removed []*Device
	service.OnRemoved(func(device *Device) { removed = append(removed, device) })

	network.add("10.0.0.5", "SN2", "New")
	_, _, err = service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)

	require.Len(t, removed, 1)
	require.Equal(t, "SN1", removed[0].ID)

	devices, err := service.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "SN2", devices[0].ID)
}

func TestService_Update(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	network.add("10.0.0.6", "SN2", "Dune")
	service := newTestService(t, network)
	_, _, err := service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	_, _, err = service.Configure(context.Background(), "10.0.0.6")
	require.NoError(t, err)

	var removed []*Device
	service.OnRemoved(func(device *Device) { removed = append(removed, device) })

	name := "Cinema"
	updated, err := service.Update("SN1", UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Cinema", updated.Name)

	taken := "10.0.0.6"
	_, err = service.Update("SN1", UpdateInput{Address: &taken})
	var inUse *AddressInUseError
	require.ErrorAs(t, err, &inUse)
	require.Equal(t, "SN2", inUse.DeviceID)

	empty := " "
	_, err = service.Update("SN1", UpdateInput{Name: &empty})
	require.ErrorIs(t, err, ErrInvalidInput)

	disabled := false
	updated, err = service.Update("SN1", UpdateInput{Enabled: &disabled})
	require.NoError(t, err)
	require.False(t, updated.Enabled)
	require.Len(t, removed, 1)

	missing, err := service.Update("nope", UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestService_RemoveAndClear(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	network.add("10.0.0.6", "SN2", "Dune")
	service := newTestService(t, network)
	_, _, err := service.Configure(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	_, _, err = service.Configure(context.Background(), "10.0.0.6")
	require.NoError(t, err)

	var removed []*Device
	service.OnRemoved(func(device *Device) { removed = append(removed, device) })

	ok, err := service.Remove("SN1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = service.Remove("SN1")
	require.NoError(t, err)
	require.False(t, ok)

	count, err := service.Clear()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.Len(t, removed, 2)
	require.Equal(t, "SN1", removed[0].ID)
	require.Nil(t, removed[1])
}

func TestService_RescanProbesCandidates(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	service := newTestService(t, network)
	service.SetDiscover(func(ctx context.Context, opts discovery.Options, logger *log.Logger) ([]discovery.Candidate, error) {
		return []discovery.Candidate{{Address: "10.0.0.5"}, {Address: "10.0.0.99"}}, nil
	})

	result, err := service.Rescan()
	require.NoError(t, err)
	require.Equal(t, 2, result.Candidates)
	require.Len(t, result.Found, 1)
	require.Equal(t, "SN1", result.Found[0].ID)
}

func TestService_RescanTestModeUsesStaticAddresses(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	service := newTestService(t, network)
	service.cfg.StaticDeviceAddresses = []string{"10.0.0.5"}
	service.SetTestMode(true)
	service.SetDiscover(func(ctx context.Context, opts discovery.Options, logger *log.Logger) ([]discovery.Candidate, error) {
		t.Fatal("discovery must not run in test mode")
		return nil, nil
	})

	result, err := service.Rescan()
	require.NoError(t, err)
	require.Len(t, result.Found, 1)
}

func TestService_RescanSingleFlight(t *testing.T) {
	service := newTestService(t, newFakeNetwork())

	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	service.SetDiscover(func(ctx context.Context, opts discovery.Options, logger *log.Logger) ([]discovery.Candidate, error) {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil, nil
	})

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := service.Rescan()
		errs <- err
	}()
	<-started

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Rescan()
			errs <- err
		}()
	}

	require.Eventually(t, func() bool {
		service.discoveryMu.Lock()
		defer service.discoveryMu.Unlock()
		return len(service.discoveryWaiters) == 3
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), runs.Load())
}

func TestService_DiscoverAndStore(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	service := newTestService(t, network)
	service.SetDiscover(func(ctx context.Context, opts discovery.Options, logger *log.Logger) ([]discovery.Candidate, error) {
		return []discovery.Candidate{{Address: "10.0.0.5"}}, nil
	})

	var added []Device
	service.OnAdded(func(device Device) { added = append(added, device) })

	service.discoverAndStore()
	service.discoverAndStore()

	devices, err := service.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, added, 1)
}

func TestService_PeriodicDiscoverySchedule(t *testing.T) {
	service := newTestService(t, newFakeNetwork())

	require.NoError(t, service.StartPeriodicDiscovery())
	require.Nil(t, service.scheduler)

	service.cfg.DiscoverySchedule = "not a schedule"
	require.Error(t, service.StartPeriodicDiscovery())

	service.cfg.DiscoverySchedule = "@every 1h"
	require.NoError(t, service.StartPeriodicDiscovery())
	require.NotNil(t, service.scheduler)
	service.StopPeriodicDiscovery()
	require.Nil(t, service.scheduler)
}
