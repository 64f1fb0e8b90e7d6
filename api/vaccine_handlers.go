package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/services/vaccine"
	"github.com/sproutcare/sprout-api/validate"
)

func (a *API) listVaccinesHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "listVaccinesHandler"))

	childID := httprouter.ParamsFromContext(r.Context()).ByName("childId")
	if childID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId")
		return
	}

	rs, err := a.deps.VaccineService.ListRecords(r.Context(), childID)
	if err != nil {
		logger.Error("Failed to fetch records", zap.String("childId", childID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to fetch records")
		return
	}

	WriteJSON(rw, map[string]interface{}{
		"records":                rs.Records,
		"country":                rs.Country,
		"needsCountryAssignment": rs.NeedsCountryAssignment,
	}, http.StatusOK)
}

func (a *API) immunizationsHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "immunizationsHandler"))

	childID := httprouter.ParamsFromContext(r.Context()).ByName("childId")
	if childID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId")
		return
	}

	view, err := a.deps.VaccineService.Immunizations(r.Context(), childID)
	if err != nil {
		// No calendar assigned yet: the client should run country selection
		// before asking for the bucketed view again.
		if errors.Is(err, vaccine.ErrNeedsCountry) {
			WriteJSON(rw, map[string]interface{}{
				"needsCountryAssignment": true,
			}, http.StatusConflict)
			return
		}

		logger.Error("Failed to build immunizations view", zap.String("childId", childID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to build immunizations view")
		return
	}

	WriteJSON(rw, view, http.StatusOK)
}

func (a *API) createVaccineHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "createVaccineHandler"))

	childID := httprouter.ParamsFromContext(r.Context()).ByName("childId")
	if childID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId")
		return
	}

	payload, ok := a.decodeVaccinePayload(rw, r)
	if !ok {
		return
	}

	record, err := a.deps.VaccineService.Create(r.Context(), childID, payload)
	if err != nil {
		logger.Error("Failed to create record", zap.String("childId", childID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to create record")
		return
	}

	WriteJSON(rw, record, http.StatusCreated)
}

func (a *API) updateVaccineHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "updateVaccineHandler"))

	params := httprouter.ParamsFromContext(r.Context())
	childID := params.ByName("childId")
	recordID := params.ByName("recordId")

	if childID == "" || recordID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId or recordId")
		return
	}

	payload, ok := a.decodeVaccinePayload(rw, r)
	if !ok {
		return
	}

	record, err := a.deps.VaccineService.Update(r.Context(), childID, recordID, payload)
	if err != nil {
		logger.Error("Failed to update record", zap.String("recordId", recordID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to update record")
		return
	}

	WriteJSON(rw, record, http.StatusOK)
}

func (a *API) deleteVaccineHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "deleteVaccineHandler"))

	params := httprouter.ParamsFromContext(r.Context())
	childID := params.ByName("childId")
	recordID := params.ByName("recordId")

	if childID == "" || recordID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId or recordId")
		return
	}

	if err := a.deps.VaccineService.Delete(r.Context(), childID, recordID); err != nil {
		logger.Error("Failed to delete record", zap.String("recordId", recordID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to delete record")
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (a *API) decodeVaccinePayload(rw http.ResponseWriter, r *http.Request) (*immunize.VaccinePayload, bool) {
	payload := &immunize.VaccinePayload{}

	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		a.writeError(rw, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	defer r.Body.Close()

	if err := validate.VaccinePayload(payload); err != nil {
		a.writeError(rw, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return payload, true
}
