// Package app wires the HTTP API: product reads, supported categories and
// import runs.
package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pcparts/partsdb/app/api"
	"github.com/pcparts/partsdb/app/catalog"
	"github.com/pcparts/partsdb/app/categories"
	"github.com/pcparts/partsdb/app/imports"
	"github.com/pcparts/partsdb/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Catalog    *catalog.CatalogHandler
	Categories *categories.CategoryHandler
	Imports    *imports.ImportHandler
}

// NewRouter returns the instrumented HTTP handler for the API.
func NewRouter(h Handlers, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", h.Catalog.HandleGet)
	r.Get("/products/{id}", h.Catalog.HandleGetProduct)

	r.Get("/categories", h.Categories.HandleGetAll)
	r.Post("/categories", h.Categories.HandleCreate)

	r.Get("/imports", h.Imports.HandleList)
	r.Get("/imports/{id}", h.Imports.HandleGet)
	r.Post("/imports/{category}", h.Imports.HandleRun)

	return otelhttp.NewHandler(r, "partsdb")
}

// requestLogger writes one access log line per request and makes the chi
// request id available to loggers further down the call chain.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqID := middleware.GetReqID(r.Context())
			r = r.WithContext(logger.WithRequestID(r.Context(), reqID))

			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", reqID),
				}
				if ww.Status() >= http.StatusInternalServerError {
					log.Warn("HTTP request", fields...)
					return
				}
				log.Info("HTTP request", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
