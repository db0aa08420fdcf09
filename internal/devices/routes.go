package devices

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
)

// rfc3339Millis formats time with milliseconds
func rfc3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

type addressRequest struct {
	Address string `json:"address"`
}

// RegisterRoutes wires device routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		devices, err := service.List()
		if err != nil {
			return apperrors.NewInternalError("Failed to load devices")
		}

		formatted := make([]map[string]any, 0, len(devices))
		for _, device := range devices {
			formatted = append(formatted, formatDevice(device))
		}
		return api.WriteList(w, "/v1/devices", formatted, false)
	}))

	router.Method(http.MethodPost, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body addressRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Address) == "" {
			return apperrors.NewValidationError("address is required", map[string]any{"field": "address"})
		}

		ctx, cancel := context.WithTimeout(r.Context(), service.cfg.DuneHDTimeout())
		defer cancel()

		device, created, err := service.Configure(ctx, body.Address)
		if err != nil {
			return deviceError(body.Address, err)
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return api.WriteResource(w, status, formatDevice(*device))
	}))

	router.Method(http.MethodDelete, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		count, err := service.Clear()
		if err != nil {
			return apperrors.NewInternalError("Failed to clear devices")
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "device_clear",
			"deleted": count,
		})
	}))

	router.Method(http.MethodPost, "/v1/devices/probe", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body addressRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Address) == "" {
			return apperrors.NewValidationError("address is required", map[string]any{"field": "address"})
		}

		ctx, cancel := context.WithTimeout(r.Context(), service.cfg.DuneHDTimeout())
		defer cancel()

		device, err := service.Probe(ctx, body.Address)
		if err != nil {
			return deviceError(body.Address, err)
		}

		configured, err := service.Get(device.ID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load device")
		}

		formatted := formatDevice(*device)
		formatted["object"] = "probe_result"
		formatted["configured"] = configured != nil
		return api.WriteAction(w, http.StatusOK, formatted)
	}))

	router.Method(http.MethodPost, "/v1/devices/rescan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		result, err := service.Rescan()
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeDiscoveryFailed, "Device rescan failed", http.StatusInternalServerError, nil)
		}

		found := make([]map[string]any, 0, len(result.Found))
		for _, device := range result.Found {
			if r.URL.Query().Get("configure") == "true" {
				if stored, _, err := service.store(device); err == nil {
					device = *stored
				}
			}
			found = append(found, formatDevice(device))
		}

		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":      "rescan",
			"devices":     found,
			"candidates":  result.Candidates,
			"duration_ms": result.DurationMs,
		})
	}))

	router.Method(http.MethodGet, "/v1/devices/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")

		device, err := service.Get(deviceID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load device")
		}
		if device == nil {
			return deviceNotFound(deviceID)
		}
		return api.WriteResource(w, http.StatusOK, formatDevice(*device))
	}))

	router.Method(http.MethodPatch, "/v1/devices/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")

		var body UpdateInput
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}

		device, err := service.Update(deviceID, body)
		if err != nil {
			return deviceError(deviceID, err)
		}
		if device == nil {
			return deviceNotFound(deviceID)
		}
		return api.WriteResource(w, http.StatusOK, formatDevice(*device))
	}))

	router.Method(http.MethodDelete, "/v1/devices/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")

		removed, err := service.Remove(deviceID)
		if err != nil {
			return apperrors.NewInternalError("Failed to remove device")
		}
		if !removed {
			return deviceNotFound(deviceID)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "device",
			"id":      deviceID,
			"deleted": true,
		})
	}))
}

func deviceNotFound(deviceID string) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotFound, "Device not found: "+deviceID, http.StatusNotFound, map[string]any{"id": deviceID})
}

func deviceError(subject string, err error) error {
	var addressErr *AddressInUseError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, ErrNotDuneHD):
		return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotDuneHD, "Host did not identify as a Dune-HD player", http.StatusUnprocessableEntity, map[string]any{"address": subject})
	case errors.As(err, &addressErr):
		return apperrors.NewAppError(apperrors.ErrorCodeDeviceExists, addressErr.Error(), http.StatusConflict, map[string]any{"device_id": addressErr.DeviceID})
	case dunehd.IsTransportError(err):
		return apperrors.NewDeviceError(subject, err)
	default:
		return apperrors.NewInternalError("Device operation failed")
	}
}

func formatDevice(device Device) map[string]any {
	var lastSeen any
	if device.LastSeenAt != nil {
		lastSeen = rfc3339Millis(*device.LastSeenAt)
	}
	var createdAt, updatedAt any
	if !device.CreatedAt.IsZero() {
		createdAt = rfc3339Millis(device.CreatedAt)
	}
	if !device.UpdatedAt.IsZero() {
		updatedAt = rfc3339Millis(device.UpdatedAt)
	}

	return map[string]any{
		"object":           "device",
		"id":               device.ID,
		"name":             device.Name,
		"address":          device.Address,
		"product_id":       device.ProductID,
		"firmware_version": device.FirmwareVersion,
		"enabled":          device.Enabled,
		"created_at":       createdAt,
		"updated_at":       updatedAt,
		"last_seen_at":     lastSeen,
	}
}
