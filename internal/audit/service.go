package audit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/dunehd-hub-go/internal/config"
)

const (
	DefaultRetentionDays   = 30
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service records and queries audit events and prunes old ones on a cron
// schedule.
type Service struct {
	logger        *log.Logger
	repo          *Repository
	retentionDays int
	pruneSchedule string
	now           func() time.Time

	cronMu    sync.Mutex
	scheduler *cron.Cron

	healthMu            sync.RWMutex
	healthy             bool
	consecutiveFailures int
}

// NewService creates a new audit service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	retention := cfg.AuditRetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneSchedule: cfg.AuditPruneSchedule,
		now:           time.Now,
		healthy:       true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("record audit event: %w", err)
	}
	s.recordSuccess()
	return event, nil
}

// QueryEvents returns one page of events, the total match count and
// whether more pages follow. The limit is clamped to MaxQueryLimit.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("query audit events: %w", err)
	}
	s.recordSuccess()

	hasMore := filters.Offset+len(events) < total
	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	s.recordSuccess()
	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}
	return event, nil
}

// Prune deletes events older than the retention period.
func (s *Service) Prune() (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.Prune(cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	s.recordSuccess()
	return count, nil
}

// StartPruneJob prunes once and then on the configured cron schedule. An
// empty schedule only prunes once.
func (s *Service) StartPruneJob() error {
	s.runPrune()

	if s.pruneSchedule == "" {
		return nil
	}

	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	scheduler := cron.New(cron.WithLogger(cron.PrintfLogger(s.logger)))
	if _, err := scheduler.AddFunc(s.pruneSchedule, s.runPrune); err != nil {
		return fmt.Errorf("audit prune schedule %q: %w", s.pruneSchedule, err)
	}
	scheduler.Start()
	s.scheduler = scheduler

	s.logger.Printf("AUDIT: prune scheduled %q (retention %d days)", s.pruneSchedule, s.retentionDays)
	return nil
}

// StopPruneJob stops the schedule and waits for a running prune.
func (s *Service) StopPruneJob() {
	s.cronMu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.cronMu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

func (s *Service) runPrune() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Printf("AUDIT: %v", err)
		return
	}
	if count > 0 {
		s.logger.Printf("AUDIT: pruned %d events", count)
	}
}

// IsHealthy reports false after MaxConsecutiveFailures database errors.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
