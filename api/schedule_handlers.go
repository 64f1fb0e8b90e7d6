package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

func (a *API) schedulesHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "schedulesHandler"))
	logger.Debug("handling /api/schedules request", zap.String("remoteAddr", r.RemoteAddr))

	countries, err := a.deps.ScheduleService.ListCountries(r.Context())
	if err != nil {
		logger.Error("Failed to fetch schedule listing", zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to fetch schedule listing")
		return
	}

	WriteJSON(rw, map[string]interface{}{"countries": countries}, http.StatusOK)
}

func (a *API) scheduleTemplatesHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "scheduleTemplatesHandler"))

	country := httprouter.ParamsFromContext(r.Context()).ByName("country")
	if country == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing country")
		return
	}

	logger.Debug("handling schedule templates request", zap.String("country", country))

	templates, err := a.deps.ScheduleService.TemplatesForCountry(r.Context(), country)
	if err != nil {
		logger.Error("Failed to fetch templates", zap.String("country", country), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to fetch templates")
		return
	}

	WriteJSON(rw, map[string]interface{}{
		"country":   country,
		"templates": templates,
	}, http.StatusOK)
}
