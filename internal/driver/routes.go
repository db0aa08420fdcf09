package driver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
	"github.com/strefethen/dunehd-hub-go/internal/dunehd"
	"github.com/strefethen/dunehd-hub-go/internal/player"
)

const commandTimeout = 10 * time.Second

type commandRequest struct {
	CmdID  string         `json:"cmd_id"`
	Params map[string]any `json:"params,omitempty"`
}

type entityIDsRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

// RegisterRoutes wires entity and hub routes to the router.
func RegisterRoutes(router chi.Router, driver *Driver) {
	router.Method(http.MethodGet, "/v1/entities", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		entities := driver.Entities()
		formatted := make([]map[string]any, 0, len(entities))
		for _, entity := range entities {
			formatted = append(formatted, formatEntity(entity))
		}
		return api.WriteList(w, "/v1/entities", formatted, false)
	}))

	router.Method(http.MethodPost, "/v1/entities/subscribe", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body entityIDsRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if len(body.EntityIDs) == 0 {
			return apperrors.NewValidationError("entity_ids is required", map[string]any{"field": "entity_ids"})
		}

		missing := driver.SubscribeEntities(body.EntityIDs)
		if missing == nil {
			missing = []string{}
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":     "subscription",
			"entity_ids": body.EntityIDs,
			"missing":    missing,
		})
	}))

	router.Method(http.MethodPost, "/v1/entities/unsubscribe", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body entityIDsRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if len(body.EntityIDs) == 0 {
			return apperrors.NewValidationError("entity_ids is required", map[string]any{"field": "entity_ids"})
		}

		driver.UnsubscribeEntities(body.EntityIDs)
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":     "subscription",
			"entity_ids": body.EntityIDs,
			"missing":    []string{},
		})
	}))

	router.Method(http.MethodGet, "/v1/entities/{entity_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		entity, ok := driver.Entity(entityID)
		if !ok {
			return entityNotFound(entityID)
		}
		return api.WriteResource(w, http.StatusOK, formatEntity(entity))
	}))

	router.Method(http.MethodPost, "/v1/entities/{entity_id}/commands", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")

		var body commandRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		body.CmdID = strings.TrimSpace(body.CmdID)
		if body.CmdID == "" {
			return apperrors.NewValidationError("cmd_id is required", map[string]any{"field": "cmd_id"})
		}

		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		result, found := driver.ExecuteCommand(ctx, entityID, body.CmdID, body.Params)
		if !found {
			return entityNotFound(entityID)
		}
		if result.Code != player.StatusOK {
			return commandError(entityID, body.CmdID, result)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "command_result",
			"entity_id": entityID,
			"cmd_id":    body.CmdID,
			"status":    result.Code.String(),
		})
	}))

	router.Method(http.MethodPost, "/v1/entities/{entity_id}/connect", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		if !driver.ConnectEntity(entityID) {
			return entityNotFound(entityID)
		}
		entity, _ := driver.Entity(entityID)
		return api.WriteAction(w, http.StatusAccepted, formatEntity(entity))
	}))

	router.Method(http.MethodPost, "/v1/entities/{entity_id}/disconnect", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		if !driver.DisconnectEntity(entityID) {
			return entityNotFound(entityID)
		}
		entity, _ := driver.Entity(entityID)
		return api.WriteAction(w, http.StatusOK, formatEntity(entity))
	}))

	router.Method(http.MethodGet, "/v1/hub/state", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, formatHub(driver))
	}))

	router.Method(http.MethodPost, "/v1/hub/{event}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		event := chi.URLParam(r, "event")
		switch event {
		case "connect":
			driver.HubConnect()
		case "disconnect":
			driver.HubDisconnect()
		case "enter_standby":
			driver.EnterStandby()
		case "exit_standby":
			driver.ExitStandby()
		default:
			return apperrors.NewAppError(apperrors.ErrorCodeInvalidHubEvent, "Unknown hub event: "+event, http.StatusBadRequest, map[string]any{
				"allowed": []string{"connect", "disconnect", "enter_standby", "exit_standby"},
			})
		}
		return api.WriteAction(w, http.StatusOK, formatHub(driver))
	}))
}

func entityNotFound(entityID string) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeEntityNotFound, "Entity not found: "+entityID, http.StatusNotFound, map[string]any{"id": entityID})
}

func commandError(entityID, cmdID string, result player.CommandResult) error {
	message := "Command failed"
	if result.Err != nil {
		message = result.Err.Error()
	}
	details := map[string]any{"entity_id": entityID, "cmd_id": cmdID}

	switch result.Code {
	case player.StatusBadRequest:
		return apperrors.NewAppError(apperrors.ErrorCodeCommandRejected, message, http.StatusBadRequest, details)
	case player.StatusNotImplemented:
		return apperrors.NewAppError(apperrors.ErrorCodeCommandNotImplemented, message, http.StatusNotImplemented, details)
	case player.StatusConflict:
		return apperrors.NewAppError(apperrors.ErrorCodeCommandConflict, message, http.StatusConflict, details)
	case player.StatusTimeout:
		return apperrors.NewAppError(apperrors.ErrorCodeCommandTimeout, message, http.StatusRequestTimeout, details)
	}
	if dunehd.IsTransportError(result.Err) {
		return apperrors.NewDeviceError(entityID, result.Err)
	}
	return apperrors.NewAppError(apperrors.ErrorCodeCommandRejected, message, http.StatusInternalServerError, details)
}

func formatEntity(entity Entity) map[string]any {
	return map[string]any{
		"object":     "entity",
		"id":         entity.ID,
		"type":       "media_player",
		"name":       entity.Name,
		"address":    entity.Address,
		"subscribed": entity.Subscribed,
		"connection": entity.Connection.String(),
		"attributes": entity.Attributes.ToMap(),
		"features":   player.SupportedCommands(),
	}
}

func formatHub(driver *Driver) map[string]any {
	connected, total := driver.Counts()
	return map[string]any{
		"object":            "hub",
		"state":             string(driver.HubState()),
		"devices_connected": connected,
		"devices_total":     total,
	}
}
