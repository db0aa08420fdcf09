package system

import (
	"context"
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/driver"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// EntityCounter reports player connection counts and the hub state.
type EntityCounter interface {
	Counts() (connected, total int)
	HubState() driver.HubState
}

// HealthReporter is implemented by components that degrade after
// repeated failures.
type HealthReporter interface {
	IsHealthy() bool
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service reports process and bridge status. Read only.
type Service struct {
	logger    *log.Logger
	reader    *sql.DB
	entities  EntityCounter
	audit     HealthReporter
	mqtt      bool
	startTime time.Time
}

func NewService(dbPair DBPair, entities EntityCounter, audit HealthReporter, mqttEnabled bool, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:    logger,
		reader:    dbPair.Reader(),
		entities:  entities,
		audit:     audit,
		mqtt:      mqttEnabled,
		startTime: time.Now(),
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	HubVersion       string
	Uptime           int64
	MemoryUsageMB    float64
	Goroutines       int
	SQLiteConnected  bool
	AuditHealthy     bool
	MQTTEnabled      bool
	DevicesConnected int
	DevicesTotal     int
	HubState         driver.HubState
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo(ctx context.Context) SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		HubVersion:    Version,
		Uptime:        int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB: float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		AuditHealthy:  true,
		MQTTEnabled:   s.mqtt,
		HubState:      driver.HubDisconnected,
	}

	if err := s.reader.PingContext(ctx); err != nil {
		s.logger.Printf("SYSTEM: sqlite ping failed: %v", err)
	} else {
		info.SQLiteConnected = true
	}

	if s.audit != nil {
		info.AuditHealthy = s.audit.IsHealthy()
	}
	if s.entities != nil {
		info.DevicesConnected, info.DevicesTotal = s.entities.Counts()
		info.HubState = s.entities.HubState()
	}

	return info
}

// Ready reports whether the bridge can serve requests.
func (s *Service) Ready(ctx context.Context) bool {
	return s.reader.PingContext(ctx) == nil
}
