package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/InVisionApp/go-health/handlers"
	"github.com/newrelic/go-agent/v3/integrations/nrhttprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/config"
	"github.com/sproutcare/sprout-api/deps"
)

type API struct {
	config  *config.Config
	deps    *deps.Dependencies
	server  *http.Server
	log     clog.ICustomLog
	version string
}

type ResponseJSON struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Values  map[string]string `json:"values,omitempty"`
	Errors  string            `json:"errors,omitempty"`
}

func New(cfg *config.Config, d *deps.Dependencies, version string) (*API, error) {
	if cfg == nil {
		return nil, errors.New("cfg cannot be nil")
	}

	if d == nil {
		return nil, errors.New("deps cannot be nil")
	}

	server := &http.Server{
		Addr: cfg.APIListenAddress,
	}

	a := &API{
		config:  cfg,
		deps:    d,
		server:  server,
		version: version,
		log:     d.Log.With(zap.String("pkg", "api")),
	}

	// Run shutdown listener
	go a.runShutdownListener()

	return a, nil

}

func (a *API) runShutdownListener() {
	<-a.deps.ShutdownCtx.Done()

	// Give server 5s to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("Error shutting down API server", zap.Error(err))
	}
}

func (a *API) Run() error {
	logger := a.log.With(zap.String("method", "Run"))

	a.server.Handler = a.corsMiddleware(a.router())

	logger.Info("API server running", zap.String("listenAddress", a.config.APIListenAddress))

	return a.server.ListenAndServe()
}

func (a *API) router() http.Handler {
	router := nrhttprouter.New(a.deps.NewRelicApp)

	router.HandlerFunc("GET", "/health-check", handlers.NewJSONHandlerFunc(a.deps.Health, nil))
	router.HandlerFunc("GET", "/version", a.versionHandler)

	router.HandlerFunc("GET", "/api/schedules", a.schedulesHandler)
	router.HandlerFunc("GET", "/api/schedules/:country", a.scheduleTemplatesHandler)

	router.HandlerFunc("GET", "/api/children/:childId/vaccines", a.listVaccinesHandler)
	router.HandlerFunc("POST", "/api/children/:childId/vaccines", a.createVaccineHandler)
	router.HandlerFunc("PUT", "/api/children/:childId/vaccines/:recordId", a.updateVaccineHandler)
	router.HandlerFunc("DELETE", "/api/children/:childId/vaccines/:recordId", a.deleteVaccineHandler)

	router.HandlerFunc("GET", "/api/children/:childId/immunizations", a.immunizationsHandler)
	router.HandlerFunc("POST", "/api/children/:childId/schedule", a.assignScheduleHandler)

	router.HandlerFunc("GET", "/api/users/:userId/selected-child", a.getSelectedChildHandler)
	router.HandlerFunc("PUT", "/api/users/:userId/selected-child", a.setSelectedChildHandler)

	router.HandlerFunc("POST", "/api/analytics", a.analyticsHandler)

	// Maybe enable profiling
	if a.config.EnablePprof {
		router.Handler(http.MethodGet, "/debug/pprof/*item", http.DefaultServeMux)
	}

	return router
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(rw, r)
	})
}

func (a *API) versionHandler(rw http.ResponseWriter, r *http.Request) {
	WriteJSON(rw, ResponseJSON{
		Status:  http.StatusOK,
		Message: "sprout-api",
		Values: map[string]string{
			"version": a.version,
		},
	}, http.StatusOK)
}

// WriteJSON is a helper function for writing JSON responses
func WriteJSON(rw http.ResponseWriter, payload interface{}, status int) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: unable to marshal JSON during WriteJSON "+
			"(payload: '%s'; status: '%d'): %s\n", payload, status, err)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if _, err := rw.Write(data); err != nil {
		log.Printf("ERROR: unable to write resp in WriteJSON: %s\n", err)
		return
	}
}

func (a *API) writeError(rw http.ResponseWriter, statusCode int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)

	errorResponse := map[string]string{
		"error": message,
	}

	if err := json.NewEncoder(rw).Encode(errorResponse); err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
	}
}
