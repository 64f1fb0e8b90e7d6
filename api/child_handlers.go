package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/services/child"
	"github.com/sproutcare/sprout-api/validate"
)

type AssignScheduleRequest struct {
	Country string `json:"country"`
}

type SelectedChildRequest struct {
	ChildID string `json:"childId"`
}

func (a *API) assignScheduleHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "assignScheduleHandler"))

	childID := httprouter.ParamsFromContext(r.Context()).ByName("childId")
	if childID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing childId")
		return
	}

	req := &AssignScheduleRequest{}

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		a.writeError(rw, http.StatusBadRequest, "Invalid request body")
		return
	}

	defer r.Body.Close()

	if err := validate.AssignScheduleRequest(req.Country); err != nil {
		a.writeError(rw, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.deps.ChildService.AssignCountry(r.Context(), childID, req.Country); err != nil {
		logger.Error("Failed to assign country", zap.String("childId", childID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to assign country")
		return
	}

	WriteJSON(rw, map[string]string{
		"childId": childID,
		"country": req.Country,
	}, http.StatusOK)
}

func (a *API) getSelectedChildHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "getSelectedChildHandler"))

	userID := httprouter.ParamsFromContext(r.Context()).ByName("userId")
	if userID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing userId")
		return
	}

	childID, err := a.deps.ChildService.GetSelectedChild(r.Context(), userID)
	if err != nil {
		if errors.Is(err, child.ErrNoSelectedChild) {
			a.writeError(rw, http.StatusNotFound, "No child selected")
			return
		}

		logger.Error("Failed to get selected child", zap.String("userId", userID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to get selected child")
		return
	}

	WriteJSON(rw, map[string]string{"childId": childID}, http.StatusOK)
}

func (a *API) setSelectedChildHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "setSelectedChildHandler"))

	userID := httprouter.ParamsFromContext(r.Context()).ByName("userId")
	if userID == "" {
		a.writeError(rw, http.StatusBadRequest, "Missing userId")
		return
	}

	req := &SelectedChildRequest{}

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		a.writeError(rw, http.StatusBadRequest, "Invalid request body")
		return
	}

	defer r.Body.Close()

	if req.ChildID == "" {
		a.writeError(rw, http.StatusBadRequest, "childId cannot be empty")
		return
	}

	if err := a.deps.ChildService.SetSelectedChild(r.Context(), userID, req.ChildID); err != nil {
		logger.Error("Failed to set selected child", zap.String("userId", userID), zap.Error(err))
		a.writeError(rw, http.StatusInternalServerError, "Failed to set selected child")
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}
