package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/audit"
	"github.com/strefethen/dunehd-hub-go/internal/auth"
	"github.com/strefethen/dunehd-hub-go/internal/config"
	"github.com/strefethen/dunehd-hub-go/internal/db"
	"github.com/strefethen/dunehd-hub-go/internal/devices"
	"github.com/strefethen/dunehd-hub-go/internal/driver"
	"github.com/strefethen/dunehd-hub-go/internal/mqtt"
	"github.com/strefethen/dunehd-hub-go/internal/openapi"
	"github.com/strefethen/dunehd-hub-go/internal/player"
	"github.com/strefethen/dunehd-hub-go/internal/stream"
	"github.com/strefethen/dunehd-hub-go/internal/system"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// DisableDiscovery limits rescans to static addresses and skips the
	// periodic schedule.
	DisableDiscovery bool
	// ClientFactory overrides the Dune-HD control client, for tests.
	ClientFactory driver.ClientFactory
}

// PlayerTiming converts the configured poll and backoff intervals.
func PlayerTiming(cfg config.Config) player.Timing {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return player.Timing{
		PollInterval: ms(cfg.PollIntervalMs),
		BackoffUnit:  ms(cfg.BackoffUnitMs),
		BackoffMax:   ms(cfg.BackoffMaxMs),
		MinDelay:     ms(cfg.MinRetryDelayMs),
	}
}

// NewHandler builds the HTTP handler, connects the configured players and
// returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	openapi.RegisterRoutes(router)

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg, nil)

	deviceService := devices.NewService(cfg, dbPair, nil)
	if options.DisableDiscovery {
		deviceService.SetTestMode(true)
	}
	devices.RegisterRoutes(router, deviceService)

	factory := options.ClientFactory
	if factory == nil {
		factory = driver.NewClientFactory(cfg.DuneHDTimeout())
	}
	drv := driver.New(deviceService, factory, PlayerTiming(cfg), nil)
	deviceService.OnAdded(drv.DeviceAdded)
	deviceService.OnRemoved(drv.DeviceRemoved)
	driver.RegisterRoutes(router, drv)

	hub := stream.NewHub(drv, time.Duration(cfg.WSPingIntervalSec)*time.Second, nil)
	drv.AddListener(hub)
	stream.RegisterRoutes(router, hub)

	auditService := audit.NewService(cfg, dbPair, nil)
	drv.AddListener(audit.NewListener(auditService))
	audit.RegisterRoutes(router, auditService)

	var publisher *mqtt.Publisher
	if mqttOptions, enabled := mqtt.OptionsFromConfig(cfg); enabled {
		publisher, err = mqtt.Connect(mqttOptions, nil)
		if err != nil {
			// State publishing is optional; the bridge runs without it.
			log.Printf("MQTT: disabled: %v", err)
		} else {
			drv.AddListener(publisher)
		}
	}

	systemService := system.NewService(dbPair, drv, auditService, publisher != nil, nil)
	system.RegisterRoutes(router, systemService)

	cleanup := func() {
		shutdownCancel()
		if publisher != nil {
			publisher.Close()
		}
		dbPair.Close()
	}

	if err := auditService.StartPruneJob(); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := auditService.RecordEvent(audit.WriteEventInput{
		Type:    audit.EventSystemStartup,
		Message: "Hub started (version " + system.Version + ")",
	}); err != nil {
		log.Printf("AUDIT: %v", err)
	}

	if err := drv.Start(); err != nil {
		auditService.StopPruneJob()
		cleanup()
		return nil, nil, fmt.Errorf("start driver: %w", err)
	}

	if !options.DisableDiscovery {
		if err := deviceService.StartPeriodicDiscovery(); err != nil {
			drv.Stop()
			auditService.StopPruneJob()
			cleanup()
			return nil, nil, err
		}
	}

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		deviceService.StopPeriodicDiscovery()
		auditService.StopPruneJob()

		stopped := make(chan struct{})
		go func() {
			drv.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			log.Printf("DRIVER: stop timed out: %v", ctx.Err())
		}

		hub.Close()
		if _, err := auditService.RecordEvent(audit.WriteEventInput{
			Type:    audit.EventSystemShutdown,
			Message: "Hub stopped",
		}); err != nil {
			log.Printf("AUDIT: %v", err)
		}

		shutdownCancel()
		if publisher != nil {
			publisher.Close()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}
