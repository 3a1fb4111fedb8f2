package openapi

import (
	_ "embed"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/vr-console-go/internal/api"
	"github.com/strefethen/vr-console-go/internal/apperrors"
)

//go:embed vr-console.v1.yaml
var embeddedSpec []byte

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveOpenAPIYAML))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveOpenAPIJSON))
}

// loadSpec returns the document named by OPENAPI_SPEC_PATH, falling back to
// the copy compiled into the binary.
func loadSpec() ([]byte, error) {
	if envPath := os.Getenv("OPENAPI_SPEC_PATH"); envPath != "" {
		return os.ReadFile(envPath)
	}
	return embeddedSpec, nil
}

func serveOpenAPIYAML(w http.ResponseWriter, r *http.Request) error {
	spec, err := loadSpec()
	if err != nil {
		return apperrors.NewInternalError("Failed to read OpenAPI specification")
	}

	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(spec)
	return nil
}

func serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) error {
	spec, err := loadSpec()
	if err != nil {
		return apperrors.NewInternalError("Failed to read OpenAPI specification")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(spec, &parsed); err != nil {
		return apperrors.NewInternalError("Failed to parse OpenAPI specification")
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	return api.WriteJSON(w, http.StatusOK, parsed)
}
