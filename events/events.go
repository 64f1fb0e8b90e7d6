// Package events defines the JSON event envelope published to and consumed
// from RabbitMQ. The envelope follows the cloudevents field naming so the
// analytics pipeline downstream can ingest it without translation.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	SpecVersion     = "1.0"
	DataContentType = "application/json"
	Source          = "sprout-api"

	TypeVaccineCreated   = "vaccine.created"
	TypeVaccineUpdated   = "vaccine.updated"
	TypeVaccineDeleted   = "vaccine.deleted"
	TypeScheduleAssigned = "schedule.assigned"
	TypeAnalyticsTrack   = "analytics.track"
)

type Event struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	SpecVersion     string          `json:"specversion"`
	DataContentType string          `json:"datacontenttype"`
	Subject         string          `json:"subject,omitempty"`
	Time            int64           `json:"time"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// VaccineChange is the payload for vaccine.created/updated/deleted events.
type VaccineChange struct {
	ChildID  string `json:"childId"`
	RecordID string `json:"recordId"`
	Name     string `json:"name,omitempty"`
}

// ScheduleAssigned is the payload for schedule.assigned events.
type ScheduleAssigned struct {
	ChildID string `json:"childId"`
	Country string `json:"country"`
}

// New builds a fully populated envelope around a marshalable payload.
func New(eventType, subject string, payload interface{}) (*Event, error) {
	if eventType == "" {
		return nil, errors.New("event type cannot be empty")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event payload")
	}

	return &Event{
		ID:              uuid.New().String(),
		Source:          Source,
		Type:            eventType,
		SpecVersion:     SpecVersion,
		DataContentType: DataContentType,
		Subject:         subject,
		Time:            time.Now().UTC().UnixNano(),
		Data:            data,
	}, nil
}
