package audit

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/config"
	"github.com/strefethen/dunehd-hub-go/internal/driver"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
	"github.com/strefethen/dunehd-hub-go/internal/player"
)

func newTestService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	return NewService(cfg, setupTestDB(t), log.New(io.Discard, "", 0))
}

func TestServiceQueryClampsLimit(t *testing.T) {
	service := newTestService(t, config.Config{})

	for i := 0; i < 3; i++ {
		_, err := service.RecordEvent(WriteEventInput{Type: EventSystemStartup, Message: "M"})
		require.NoError(t, err)
	}

	events, total, hasMore, err := service.QueryEvents(EventQueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 3, total)
	require.True(t, hasMore)

	events, _, hasMore, err = service.QueryEvents(EventQueryFilters{Limit: MaxQueryLimit + 50})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.False(t, hasMore)
}

func TestServiceGetEventNotFound(t *testing.T) {
	service := newTestService(t, config.Config{})

	_, err := service.GetEvent("missing")
	var notFound *EventNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "missing", notFound.EventID)
	require.True(t, service.IsHealthy())
}

func TestServicePruneUsesRetention(t *testing.T) {
	service := newTestService(t, config.Config{AuditRetentionDays: 7})

	_, err := service.RecordEvent(WriteEventInput{Type: EventSystemStartup, Message: "M"})
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().AddDate(0, 0, 6) }
	deleted, err := service.Prune()
	require.NoError(t, err)
	require.Zero(t, deleted)

	service.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	deleted, err = service.Prune()
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestServicePruneJobSchedule(t *testing.T) {
	service := newTestService(t, config.Config{AuditPruneSchedule: "not a schedule"})
	require.Error(t, service.StartPruneJob())

	service = newTestService(t, config.Config{AuditPruneSchedule: "0 4 * * *"})
	require.NoError(t, service.StartPruneJob())
	require.NotNil(t, service.scheduler)
	service.StopPruneJob()
	require.Nil(t, service.scheduler)

	service = newTestService(t, config.Config{})
	require.NoError(t, service.StartPruneJob())
	require.Nil(t, service.scheduler)
}

func TestListenerRecordsLifecycle(t *testing.T) {
	service := newTestService(t, config.Config{})
	listener := NewListener(service)

	change := func(kind driver.ChangeKind) driver.EntityChange {
		return driver.EntityChange{EntityID: "SN1", Name: "Living Room", Kind: kind}
	}

	listener.EntityChanged(change(driver.ChangeAdded))
	listener.EntityChanged(change(driver.ChangeDisconnected))
	listener.EntityChanged(change(driver.ChangeConnected))
	listener.EntityChanged(change(driver.ChangeUpdated))
	listener.EntityChanged(change(driver.ChangeDisconnected))
	listener.EntityChanged(change(driver.ChangeDisconnected))
	listener.EntityChanged(change(driver.ChangeRemoved))
	listener.HubStateChanged(driver.HubConnected)

	events, _, _, err := service.QueryEvents(EventQueryFilters{DeviceID: ptr("SN1")})
	require.NoError(t, err)

	var types []string
	for _, event := range events {
		types = append(types, event.Type)
	}
	require.ElementsMatch(t, []string{
		string(EventDeviceAdded),
		string(EventDeviceConnected),
		string(EventDeviceDisconnected),
		string(EventDeviceRemoved),
	}, types)
}

func TestListenerRecordsCommandFailure(t *testing.T) {
	service := newTestService(t, config.Config{})
	listener := NewListener(service)

	ctx := api.WithRequestID(context.Background(), "req-42")
	listener.CommandFailed(ctx, "SN1", player.CmdVolume, player.CommandResult{
		Code: player.StatusServerError,
		Err:  &dunehd.TimeoutError{Command: dunehd.CommandSetPlaybackState},
	})

	events, _, _, err := service.QueryEvents(EventQueryFilters{Type: ptr(string(EventCommandFailed))})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventLevelError, events[0].Level)
	require.Equal(t, player.CmdVolume, events[0].Payload["command"])
	require.Equal(t, float64(500), events[0].Payload["status"])
	require.NotNil(t, events[0].RequestID)
	require.Equal(t, "req-42", *events[0].RequestID)
}

func TestRoutes(t *testing.T) {
	service := newTestService(t, config.Config{})
	event, err := service.RecordEvent(WriteEventInput{Type: EventDeviceAdded, DeviceID: ptr("SN1"), Message: "added"})
	require.NoError(t, err)

	router := chi.NewRouter()
	RegisterRoutes(router, service)

	cases := []struct {
		path   string
		status int
	}{
		{"/v1/audit/events", http.StatusOK},
		{"/v1/audit/events?type=DEVICE_ADDED&device_id=SN1&level=INFO", http.StatusOK},
		{"/v1/audit/events/" + event.EventID, http.StatusOK},
		{"/v1/audit/events/missing", http.StatusNotFound},
		{"/v1/audit/events?type=BOGUS", http.StatusBadRequest},
		{"/v1/audit/events?limit=0", http.StatusBadRequest},
		{"/v1/audit/events?from=yesterday", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}
