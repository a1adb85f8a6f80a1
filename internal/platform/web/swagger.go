package web

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openapiDoc []byte

// MountSwagger mounts the API document and its UI under /docs if enabled
func MountSwagger(m *chi.Mux, enabled bool) {
	if !enabled {
		return
	}
	m.Get("/docs/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(openapiDoc)
	})
	m.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))
}
