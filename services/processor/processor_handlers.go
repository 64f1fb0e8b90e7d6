package processor

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/validate"
)

// NOTE: Every replica consumes every change event and drops its own local
// cache entries. Wasteful when only one replica holds the entry, but it keeps
// invalidation dead simple and correct.

func (p *Processor) handleVaccineChange(ctx context.Context, event *events.Event) error {
	logger := p.log.With(zap.String("method", "handleVaccineChange"))

	change, err := validate.VaccineChangeEvent(event)
	if err != nil {
		logger.Error("failed to validate vaccine change event", zap.Error(err))
		return errors.Wrap(err, "failed to validate vaccine change event")
	}

	logger = logger.With(
		zap.String("childId", change.ChildID),
		zap.String("recordId", change.RecordID),
	)

	logger.Debug("Invalidating record caches")

	p.options.VaccineService.Invalidate(change.ChildID)

	return nil
}

func (p *Processor) handleScheduleAssigned(ctx context.Context, event *events.Event) error {
	logger := p.log.With(zap.String("method", "handleScheduleAssigned"))

	assigned, err := validate.ScheduleAssignedEvent(event)
	if err != nil {
		logger.Error("failed to validate schedule assigned event", zap.Error(err))
		return errors.Wrap(err, "failed to validate schedule assigned event")
	}

	logger = logger.With(
		zap.String("childId", assigned.ChildID),
		zap.String("country", assigned.Country),
	)

	logger.Debug("Invalidating record caches after schedule assignment")

	p.options.VaccineService.Invalidate(assigned.ChildID)

	return nil
}
