// Package validate holds the input validation shared between the API handlers
// and the event processor.
package validate

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/dates"
	"github.com/sproutcare/sprout-api/events"
)

// Event validates the envelope fields common to every message on the bus.
func Event(event *events.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	if event.ID == "" {
		return errors.New("event id cannot be empty")
	}

	if event.DataContentType == "" {
		return errors.New("event data content type cannot be empty")
	}

	if event.Source == "" {
		return errors.New("event source cannot be empty")
	}

	if event.Type == "" {
		return errors.New("event type cannot be empty")
	}

	if event.Time == 0 {
		return errors.New("event time cannot be zero")
	}

	if event.SpecVersion == "" {
		return errors.New("event spec version cannot be empty")
	}

	return nil
}

func VaccineChangeEvent(event *events.Event) (*events.VaccineChange, error) {
	if err := Event(event); err != nil {
		return nil, err
	}

	change := &events.VaccineChange{}

	if err := json.Unmarshal(event.Data, change); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal vaccine change payload")
	}

	if change.ChildID == "" {
		return nil, errors.New("vaccine change child id cannot be empty")
	}

	// RecordID may be empty on deletes replayed from older producers; ChildID
	// alone is enough to invalidate.

	return change, nil
}

func ScheduleAssignedEvent(event *events.Event) (*events.ScheduleAssigned, error) {
	if err := Event(event); err != nil {
		return nil, err
	}

	assigned := &events.ScheduleAssigned{}

	if err := json.Unmarshal(event.Data, assigned); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal schedule assigned payload")
	}

	if assigned.ChildID == "" {
		return nil, errors.New("schedule assigned child id cannot be empty")
	}

	if assigned.Country == "" {
		return nil, errors.New("schedule assigned country cannot be empty")
	}

	return assigned, nil
}

// VaccinePayload validates a create/update request body. Dates must be either
// empty or decodable — a typo'd date is rejected here rather than silently
// stored and skipped by reconciliation later.
func VaccinePayload(payload *immunize.VaccinePayload) error {
	if payload == nil {
		return errors.New("payload cannot be nil")
	}

	if payload.Name == "" {
		return errors.New("vaccine name cannot be empty")
	}

	if payload.ScheduledDate != "" {
		if _, ok := dates.Normalize(payload.ScheduledDate); !ok {
			return errors.Errorf("unparseable scheduled date '%s'", payload.ScheduledDate)
		}
	}

	if payload.AppliedDate != "" {
		if _, ok := dates.Normalize(payload.AppliedDate); !ok {
			return errors.Errorf("unparseable applied date '%s'", payload.AppliedDate)
		}
	}

	return nil
}

// AssignScheduleRequest validates the country-assignment request body.
func AssignScheduleRequest(country string) error {
	if country == "" {
		return errors.New("country cannot be empty")
	}

	if len(country) > 64 {
		return errors.New("country is too long")
	}

	return nil
}
