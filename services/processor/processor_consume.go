package processor

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/newrelic/go-agent/v3/newrelic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/util"
	"github.com/sproutcare/sprout-api/validate"
)

// ConsumeFunc is a consumer function that will be executed by the "rabbit"
// library whenever Consume() reads a new message from RabbitMQ.
func (p *Processor) ConsumeFunc(msg amqp.Delivery) error {
	logger := p.log.With(
		zap.String("method", "ConsumeFunc"),
		zap.String("routingKey", msg.RoutingKey),
	)

	txn := p.options.NewRelic.StartTransaction("ProcessorService.ConsumeFunc")
	defer txn.End()

	// ConsumeFunc runs in goroutine
	defer func() {
		if r := recover(); r != nil {
			util.Error(txn, logger, "recovered from panic", nil,
				zap.Any("panic", r),
				zap.Stack("stack"),
				zap.Any("panicTrace", string(debug.Stack())),
			)
		}
	}()

	// Invalidation is idempotent, so ACK-first is safe here: a lost message
	// costs at most one cache TTL of staleness.
	if err := msg.Ack(false); err != nil {
		util.Error(txn, logger, "unable to acknowledge message", err)
		return nil
	}

	// Try to decode message and dispatch it accordingly
	event := &events.Event{}

	if err := json.Unmarshal(msg.Body, event); err != nil {
		util.Error(txn, logger, "unable to unmarshal event", err)
		return nil
	}

	if err := validate.Event(event); err != nil {
		util.Error(txn, logger, "unable to validate event", err)
		return nil
	}

	logger = logger.With(
		zap.String("cloudEventID", event.ID),
		zap.String("cloudEventType", event.Type),
		zap.String("cloudEventSource", event.Source),
	)

	// Create context with logger that we can pass around
	ctx := context.WithValue(context.Background(), "logger", logger)

	// Now add NewRelic txn to context
	ctx = newrelic.NewContext(ctx, txn)

	// Add cloud events attributes to NewRelic txn
	txn.AddAttribute("cloudEventID", event.ID)
	txn.AddAttribute("cloudEventType", event.Type)
	txn.AddAttribute("cloudEventSource", event.Source)

	var err error

	switch event.Type {
	case events.TypeVaccineCreated, events.TypeVaccineUpdated, events.TypeVaccineDeleted:
		err = p.handleVaccineChange(ctx, event)
	case events.TypeScheduleAssigned:
		err = p.handleScheduleAssigned(ctx, event)
	default:
		// analytics.track and anything newer than this build; not ours to act on
		return nil
	}

	if err != nil {
		util.Error(txn, logger, "error processing message", err)
		return nil
	}

	return nil
}
