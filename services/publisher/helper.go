package publisher

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/sproutcare/sprout-api/events"
)

func (p *Publisher) PublishVaccineChangeEvent(ctx context.Context, eventType string, change *events.VaccineChange) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}

	if change == nil {
		return errors.New("change cannot be nil")
	}

	switch eventType {
	case events.TypeVaccineCreated, events.TypeVaccineUpdated, events.TypeVaccineDeleted:
	default:
		return errors.Errorf("unknown vaccine change event type '%s'", eventType)
	}

	event, err := events.New(eventType, change.ChildID, change)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s event", eventType)
	}

	return p.publishEvent(ctx, event)
}

func (p *Publisher) PublishScheduleAssignedEvent(ctx context.Context, assigned *events.ScheduleAssigned) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}

	if assigned == nil {
		return errors.New("assigned cannot be nil")
	}

	event, err := events.New(events.TypeScheduleAssigned, assigned.ChildID, assigned)
	if err != nil {
		return errors.Wrap(err, "failed to build schedule.assigned event")
	}

	return p.publishEvent(ctx, event)
}

func (p *Publisher) publishEvent(ctx context.Context, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s event", event.Type)
	}

	if err := p.Publish(ctx, data, event.Type); err != nil {
		return errors.Wrapf(err, "failed to publish %s event", event.Type)
	}

	return nil
}
