package openapi

import (
	_ "embed"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
)

//go:embed dunehd-hub.v1.yaml
var specYAML []byte

var (
	parseOnce  sync.Once
	parsedSpec map[string]any
	parseErr   error
)

// Spec returns the embedded document decoded from YAML.
func Spec() (map[string]any, error) {
	parseOnce.Do(func() {
		if err := yaml.Unmarshal(specYAML, &parsedSpec); err != nil {
			parseErr = fmt.Errorf("parse openapi document: %w", err)
		}
	})
	return parsedSpec, parseErr
}

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveOpenAPIYAML))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveOpenAPIJSON))
}

func serveOpenAPIYAML(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(specYAML)
	return nil
}

func serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) error {
	spec, err := Spec()
	if err != nil {
		return apperrors.NewInternalError("Failed to parse OpenAPI specification")
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	return api.WriteJSON(w, http.StatusOK, spec)
}
