package devices

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/dunehd-hub-go/internal/config"
	"github.com/strefethen/dunehd-hub-go/internal/discovery"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

// ProbeFunc asks the player at address for its status.
type ProbeFunc func(ctx context.Context, address string) (*dunehd.Status, error)

// DiscoverFunc finds candidate player addresses on the network.
type DiscoverFunc func(ctx context.Context, opts discovery.Options, logger *log.Logger) ([]discovery.Candidate, error)

type discoveryResult struct {
	result RescanResult
	err    error
}

type Service struct {
	cfg      config.Config
	logger   *log.Logger
	repo     *Repository
	probe    ProbeFunc
	discover DiscoverFunc
	testMode bool // Skip SSDP discovery in test mode

	handlersMu      sync.RWMutex
	addedHandlers   []AddedHandler
	removedHandlers []RemovedHandler

	// writeMu serializes configuration changes with their notifications.
	writeMu sync.Mutex

	discoveryMu       sync.Mutex
	discoveryInFlight bool
	discoveryWaiters  []chan discoveryResult

	periodicMu sync.Mutex
	scheduler  *cron.Cron
}

func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.DuneHDTimeout()
	return &Service{
		cfg:    cfg,
		logger: logger,
		repo:   NewRepository(dbPair),
		probe: func(ctx context.Context, address string) (*dunehd.Status, error) {
			client := dunehd.NewClient(address, timeout)
			defer client.Close()
			return client.Status(ctx)
		},
		discover: discovery.DiscoverCandidates,
	}
}

// SetTestMode enables or disables test mode. In test mode, SSDP discovery is skipped
// and only static addresses are probed.
func (service *Service) SetTestMode(enabled bool) {
	service.testMode = enabled
}

// SetProbe replaces the status probe.
func (service *Service) SetProbe(probe ProbeFunc) {
	service.probe = probe
}

// SetDiscover replaces the network discovery function.
func (service *Service) SetDiscover(discover DiscoverFunc) {
	service.discover = discover
}

// OnAdded registers a handler for configured or changed devices.
func (service *Service) OnAdded(handler AddedHandler) {
	service.handlersMu.Lock()
	defer service.handlersMu.Unlock()
	service.addedHandlers = append(service.addedHandlers, handler)
}

// OnRemoved registers a handler for removed devices.
func (service *Service) OnRemoved(handler RemovedHandler) {
	service.handlersMu.Lock()
	defer service.handlersMu.Unlock()
	service.removedHandlers = append(service.removedHandlers, handler)
}

func (service *Service) List() ([]Device, error) {
	return service.repo.List()
}

func (service *Service) Get(deviceID string) (*Device, error) {
	return service.repo.Get(deviceID)
}

// Probe queries address and returns the identity it reports without storing it.
func (service *Service) Probe(ctx context.Context, address string) (*Device, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	status, err := service.probe(ctx, address)
	if err != nil {
		var parseErr *dunehd.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%s: %w: %v", address, ErrNotDuneHD, err)
		}
		return nil, err
	}
	if strings.TrimSpace(status.SerialNumber) == "" {
		return nil, fmt.Errorf("%s: %w", address, ErrNotDuneHD)
	}

	name := strings.TrimSpace(status.ProductName)
	if name == "" {
		name = "Dune HD " + status.SerialNumber
	}
	return &Device{
		ID:              status.SerialNumber,
		Name:            name,
		Address:         address,
		ProductID:       status.ProductID,
		FirmwareVersion: status.FirmwareVersion,
		Enabled:         true,
	}, nil
}

// Configure probes address and stores the player it finds. created is false
// when the player was already configured.
func (service *Service) Configure(ctx context.Context, address string) (*Device, bool, error) {
	found, err := service.Probe(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return service.store(*found)
}

func (service *Service) store(found Device) (*Device, bool, error) {
	service.writeMu.Lock()
	defer service.writeMu.Unlock()

	existing, err := service.repo.Get(found.ID)
	if err != nil {
		return nil, false, err
	}

	// A different player now answers at this address; the old entry is stale.
	if other, err := service.repo.GetByAddress(found.Address); err != nil {
		return nil, false, err
	} else if other != nil && other.ID != found.ID {
		service.logger.Printf("DEVICES: %s replaced %s at %s", found.ID, other.ID, found.Address)
		if _, err := service.repo.Delete(other.ID); err != nil {
			return nil, false, err
		}
		service.notifyRemoved(other)
	}

	stored, err := service.repo.Upsert(found)
	if err != nil {
		return nil, false, err
	}

	created := existing == nil
	if created || existing.Address != stored.Address {
		service.logger.Printf("DEVICES: configured %s (%s) at %s", stored.ID, stored.Name, stored.Address)
	}
	if stored.Enabled {
		service.notifyAdded(*stored)
	}
	return stored, created, nil
}

// Update changes name, address or enabled flag of a configured device.
// Returns nil, nil if the device does not exist.
func (service *Service) Update(deviceID string, input UpdateInput) (*Device, error) {
	service.writeMu.Lock()
	defer service.writeMu.Unlock()

	device, err := service.repo.Get(deviceID)
	if err != nil || device == nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		device.Name = name
	}
	if input.Address != nil {
		address := strings.TrimSpace(*input.Address)
		if address == "" {
			return nil, fmt.Errorf("%w: address must not be empty", ErrInvalidInput)
		}
		other, err := service.repo.GetByAddress(address)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != deviceID {
			return nil, &AddressInUseError{Address: address, DeviceID: other.ID}
		}
		device.Address = address
	}
	if input.Enabled != nil {
		device.Enabled = *input.Enabled
	}

	updated, err := service.repo.Update(*device)
	if err != nil {
		return nil, err
	}
	if updated.Enabled {
		service.notifyAdded(*updated)
	} else {
		service.notifyRemoved(updated)
	}
	return updated, nil
}

// Remove deletes a device and reports whether it existed.
func (service *Service) Remove(deviceID string) (bool, error) {
	service.writeMu.Lock()
	defer service.writeMu.Unlock()

	device, err := service.repo.Get(deviceID)
	if err != nil || device == nil {
		return false, err
	}
	if _, err := service.repo.Delete(deviceID); err != nil {
		return false, err
	}
	service.logger.Printf("DEVICES: removed %s", deviceID)
	service.notifyRemoved(device)
	return true, nil
}

// Clear removes every configured device.
func (service *Service) Clear() (int64, error) {
	service.writeMu.Lock()
	defer service.writeMu.Unlock()

	count, err := service.repo.DeleteAll()
	if err != nil {
		return 0, err
	}
	service.logger.Printf("DEVICES: cleared %d devices", count)
	service.notifyRemoved(nil)
	return count, nil
}

// MarkSeen records a successful poll of deviceID.
func (service *Service) MarkSeen(deviceID string) {
	if err := service.repo.TouchLastSeen(deviceID, time.Now()); err != nil {
		service.logger.Printf("DEVICES: failed to update last seen for %s: %v", deviceID, err)
	}
}

// Rescan searches the network and probes every candidate. Concurrent callers
// share a single run.
func (service *Service) Rescan() (RescanResult, error) {
	result, err := service.performDiscovery()
	return result.result, err
}

// StartPeriodicDiscovery runs a rescan on the configured cron schedule and
// stores every player it finds.
func (service *Service) StartPeriodicDiscovery() error {
	service.periodicMu.Lock()
	defer service.periodicMu.Unlock()

	if service.scheduler != nil {
		return nil
	}
	if strings.TrimSpace(service.cfg.DiscoverySchedule) == "" {
		service.logger.Print("Periodic discovery disabled")
		return nil
	}

	scheduler := cron.New(cron.WithLogger(cron.PrintfLogger(service.logger)))
	if _, err := scheduler.AddFunc(service.cfg.DiscoverySchedule, service.discoverAndStore); err != nil {
		return fmt.Errorf("discovery schedule: %w", err)
	}
	service.scheduler = scheduler
	scheduler.Start()

	service.logger.Printf("Starting periodic discovery schedule=%q", service.cfg.DiscoverySchedule)
	return nil
}

func (service *Service) StopPeriodicDiscovery() {
	service.periodicMu.Lock()
	defer service.periodicMu.Unlock()
	if service.scheduler != nil {
		<-service.scheduler.Stop().Done()
		service.scheduler = nil
	}
}

func (service *Service) discoverAndStore() {
	result, err := service.Rescan()
	if err != nil {
		service.logger.Printf("Periodic discovery failed: %v", err)
		return
	}
	for _, found := range result.Found {
		existing, err := service.repo.Get(found.ID)
		if err != nil {
			service.logger.Printf("Periodic discovery: lookup %s failed: %v", found.ID, err)
			continue
		}
		if existing != nil && existing.Address == found.Address {
			service.MarkSeen(found.ID)
			continue
		}
		if _, _, err := service.store(found); err != nil {
			service.logger.Printf("Periodic discovery: store %s failed: %v", found.ID, err)
		}
	}
}

func (service *Service) performDiscovery() (discoveryResult, error) {
	service.discoveryMu.Lock()
	if service.discoveryInFlight {
		ch := make(chan discoveryResult, 1)
		service.discoveryWaiters = append(service.discoveryWaiters, ch)
		service.discoveryMu.Unlock()
		result := <-ch
		return result, result.err
	}
	service.discoveryInFlight = true
	service.discoveryMu.Unlock()

	result := service.runDiscovery()

	service.discoveryMu.Lock()
	waiters := service.discoveryWaiters
	service.discoveryWaiters = nil
	service.discoveryInFlight = false
	service.discoveryMu.Unlock()

	for _, ch := range waiters {
		ch <- result
		close(ch)
	}

	return result, result.err
}

func (service *Service) runDiscovery() discoveryResult {
	start := time.Now()
	timeout := time.Duration(service.cfg.SSDPDiscoveryTimeoutMs) * time.Millisecond

	var candidates []discovery.Candidate
	if service.testMode {
		for _, address := range service.cfg.StaticDeviceAddresses {
			candidates = append(candidates, discovery.Candidate{Address: address})
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
		var err error
		candidates, err = service.discover(ctx, discovery.Options{
			Passes:          service.cfg.SSDPDiscoveryPasses,
			PassInterval:    time.Duration(service.cfg.SSDPPassIntervalMs) * time.Millisecond,
			Timeout:         timeout,
			StaticAddresses: service.cfg.StaticDeviceAddresses,
		}, service.logger)
		cancel()
		if err != nil {
			return discoveryResult{err: err}
		}
	}

	found := make([]Device, 0, len(candidates))
	for _, candidate := range candidates {
		// Use a fresh context for each probe to avoid timeout propagation
		ctx, cancel := context.WithTimeout(context.Background(), service.cfg.DuneHDTimeout())
		device, err := service.Probe(ctx, candidate.Address)
		cancel()
		if err != nil {
			service.logger.Printf("DISCOVERY: probe %s failed: %v", candidate.Address, err)
			continue
		}
		found = append(found, *device)
	}

	return discoveryResult{result: RescanResult{
		Found:      found,
		Candidates: len(candidates),
		DurationMs: time.Since(start).Milliseconds(),
	}}
}

func (service *Service) notifyAdded(device Device) {
	service.handlersMu.RLock()
	handlers := append([]AddedHandler(nil), service.addedHandlers...)
	service.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(device)
	}
}

func (service *Service) notifyRemoved(device *Device) {
	service.handlersMu.RLock()
	handlers := append([]RemovedHandler(nil), service.removedHandlers...)
	service.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(device)
	}
}

// AddressInUseError is returned when another device is configured at an address.
type AddressInUseError struct {
	Address  string
	DeviceID string
}

func (e *AddressInUseError) Error() string {
	return fmt.Sprintf("address %s is used by device %s", e.Address, e.DeviceID)
}
