package devices

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, network *fakeNetwork) (http.Handler, *Service) {
	t.Helper()
	service := newTestService(t, network)
	router := chi.NewRouter()
	RegisterRoutes(router, service)
	return router, service
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestRoutes_ConfigureListGet(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune HD Pro 4K")
	router, _ := newTestRouter(t, network)

	rec, body := doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "device", body["object"])
	require.Equal(t, "SN1", body["id"])

	rec, _ = doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.5"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, router, http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "list", body["object"])
	require.Len(t, body["data"], 1)

	rec, body = doJSON(t, router, http.MethodGet, "/v1/devices/SN1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10.0.0.5", body["address"])
}

func TestRoutes_ConfigureErrors(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.6", "", "Renderer")
	router, _ := newTestRouter(t, network)

	rec, body := doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])

	rec, body = doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.6"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "DEVICE_NOT_DUNEHD", body["error"].(map[string]any)["code"])

	rec, body = doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.7"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "DEVICE_UNREACHABLE", body["error"].(map[string]any)["code"])
}

func TestRoutes_Probe(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	router, _ := newTestRouter(t, network)

	rec, body := doJSON(t, router, http.MethodPost, "/v1/devices/probe", map[string]any{"address": "10.0.0.5"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "probe_result", body["object"])
	require.Equal(t, false, body["configured"])
}

func TestRoutes_PatchAndDelete(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	router, _ := newTestRouter(t, network)
	doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.5"})

	rec, body := doJSON(t, router, http.MethodPatch, "/v1/devices/SN1", map[string]any{"name": "Cinema"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Cinema", body["name"])

	rec, _ = doJSON(t, router, http.MethodPatch, "/v1/devices/missing", map[string]any{"name": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doJSON(t, router, http.MethodDelete, "/v1/devices/SN1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["deleted"])

	rec, body = doJSON(t, router, http.MethodGet, "/v1/devices/SN1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "DEVICE_NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestRoutes_Clear(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	router, _ := newTestRouter(t, network)
	doJSON(t, router, http.MethodPost, "/v1/devices", map[string]any{"address": "10.0.0.5"})

	rec, body := doJSON(t, router, http.MethodDelete, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["deleted"])
}

func TestRoutes_RescanConfigure(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.0.0.5", "SN1", "Dune")
	router, service := newTestRouter(t, network)
	service.cfg.StaticDeviceAddresses = []string{"10.0.0.5"}
	service.SetTestMode(true)

	rec, body := doJSON(t, router, http.MethodPost, "/v1/devices/rescan?configure=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["devices"], 1)

	devices, err := service.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
}
