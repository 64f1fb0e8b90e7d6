package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/events"
)

// analyticsHandler accepts opaque client analytics payloads and forwards them
// onto the bus wrapped in an analytics.track envelope. The payload is not
// inspected beyond being valid JSON.
func (a *API) analyticsHandler(rw http.ResponseWriter, r *http.Request) {
	llog := a.log.With(zap.String("method", "analyticsHandler"))
	llog.Debug("handling POST request", zap.String("remoteAddr", r.RemoteAddr))

	// Read body
	data, err := io.ReadAll(r.Body)
	if err != nil {
		llog.Warn("failed to read body", zap.Error(err))

		WriteJSON(rw, ResponseJSON{
			Status:  http.StatusBadRequest,
			Message: "failed to read request body",
		}, http.StatusBadRequest)

		return
	}

	defer r.Body.Close()

	if !json.Valid(data) {
		llog.Warn("invalid json", zap.String("data", string(data)))

		WriteJSON(rw, &ResponseJSON{
			Status:  http.StatusBadRequest,
			Message: "invalid json",
		}, http.StatusBadRequest)

		return
	}

	event, err := events.New(events.TypeAnalyticsTrack, "", json.RawMessage(data))
	if err != nil {
		llog.Error("failed to build analytics event", zap.Error(err))

		WriteJSON(rw, ResponseJSON{
			Status:  http.StatusInternalServerError,
			Message: "failed to build analytics event",
		}, http.StatusInternalServerError)

		return
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		llog.Error("failed to marshal analytics event", zap.Error(err))

		WriteJSON(rw, ResponseJSON{
			Status:  http.StatusInternalServerError,
			Message: "failed to marshal analytics event",
		}, http.StatusInternalServerError)

		return
	}

	// Publish message to rabbit
	if err := a.deps.PublisherService.Publish(r.Context(), eventData, events.TypeAnalyticsTrack); err != nil {
		llog.Error("failed to publish message", zap.Error(err))

		WriteJSON(rw, ResponseJSON{
			Status:  http.StatusInternalServerError,
			Message: "failed to publish message",
		}, http.StatusInternalServerError)

		return
	}

	rw.WriteHeader(http.StatusAccepted)
}
