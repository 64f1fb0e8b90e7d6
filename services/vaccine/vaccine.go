// Package vaccine owns the child's vaccine record flow: it fetches raw record
// snapshots from the upstream API, normalizes their timestamps, exposes CRUD
// that proxies to the upstream and composes the reconciled immunization view
// served to the app.
package vaccine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/dates"
	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/services/publisher"
	"github.com/sproutcare/sprout-api/services/reconcile"
	"github.com/sproutcare/sprout-api/services/schedule"
)

const DefaultCacheTTL = 2 * time.Minute

// ErrNeedsCountry is returned by Immunizations when the upstream flags the
// child as having no assigned calendar; the caller should prompt for country
// selection instead of rendering buckets.
var ErrNeedsCountry = errors.New("child needs a country assignment")

type IVaccine interface {
	// ListRecords returns the child's normalized record snapshot.
	ListRecords(ctx context.Context, childID string) (*RecordSet, error)

	// Immunizations composes the reconciled, age-bucketed view for a child.
	Immunizations(ctx context.Context, childID string) (*View, error)

	Create(ctx context.Context, childID string, payload *immunize.VaccinePayload) (*reconcile.VaccineRecord, error)
	Update(ctx context.Context, childID, recordID string, payload *immunize.VaccinePayload) (*reconcile.VaccineRecord, error)
	Delete(ctx context.Context, childID, recordID string) error

	// Invalidate drops the cached snapshot + view for a child. Called by the
	// processor when a change event arrives from another instance.
	Invalidate(childID string)
}

// RecordSet is a normalized snapshot of the upstream records response.
type RecordSet struct {
	Records []reconcile.VaccineRecord
	Birth   *dates.Instant
	Country string

	// NeedsCountryAssignment mirrors the upstream flag; when set, reconciling
	// is meaningless and should not be attempted.
	NeedsCountryAssignment bool
}

// View is the engine output plus the flat all-records list. Records that
// matched no template (extra doses, unparseable dates) stay visible in
// Records - the bucketed view is a projection, not a filter.
type View struct {
	Buckets  []reconcile.AgeBucket            `json:"buckets"`
	Summary  map[string]reconcile.BucketCount `json:"summary"`
	Complete bool                             `json:"complete"`
	Records  []reconcile.VaccineRecord        `json:"records"`
	Country  string                           `json:"country,omitempty"`
}

type Vaccine struct {
	opts *Options
	log  clog.ICustomLog
}

type Options struct {
	Backend   immunize.IImmunize
	Schedule  schedule.ISchedule
	Cache     cache.ICache
	Publisher publisher.IPublisher
	CacheTTL  time.Duration
	Log       clog.ICustomLog
}

func New(opts *Options) (*Vaccine, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Vaccine{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "vaccine")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Backend == nil {
		return errors.New("backend cannot be nil")
	}

	if opts.Schedule == nil {
		return errors.New("schedule service cannot be nil")
	}

	if opts.Cache == nil {
		return errors.New("cache cannot be nil")
	}

	if opts.Publisher == nil {
		return errors.New("publisher cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	return nil
}

func (v *Vaccine) ListRecords(ctx context.Context, childID string) (*RecordSet, error) {
	logger := v.log.With(
		zap.String("method", "ListRecords"),
		zap.String("childId", childID),
	)

	if childID == "" {
		return nil, errors.New("childID cannot be empty")
	}

	cacheKey := cache.Key(cache.RecordsPrefix, childID)

	if cached, ok := v.opts.Cache.Get(cacheKey); ok {
		if rs, ok := cached.(*RecordSet); ok {
			logger.Debug("Returning cached record set")
			return rs, nil
		}
	}

	raw, err := v.opts.Backend.GetVaccines(ctx, childID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch vaccines")
	}

	rs := ParseRecordSet(raw)

	v.opts.Cache.Set(cacheKey, rs, v.opts.CacheTTL)

	logger.Debug("Returning record set", zap.Int("count", len(rs.Records)))

	return rs, nil
}

func (v *Vaccine) Immunizations(ctx context.Context, childID string) (*View, error) {
	logger := v.log.With(
		zap.String("method", "Immunizations"),
		zap.String("childId", childID),
	)

	if childID == "" {
		return nil, errors.New("childID cannot be empty")
	}

	cacheKey := cache.Key(cache.ImmunizationsPrefix, childID)

	if cached, ok := v.opts.Cache.Get(cacheKey); ok {
		if view, ok := cached.(*View); ok {
			logger.Debug("Returning cached view")
			return view, nil
		}
	}

	rs, err := v.ListRecords(ctx, childID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load record set")
	}

	if rs.NeedsCountryAssignment || rs.Country == "" {
		logger.Debug("Child has no country assignment - skipping reconciliation")
		return nil, ErrNeedsCountry
	}

	templates, err := v.opts.Schedule.TemplatesForCountry(ctx, rs.Country)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load templates for '%s'", rs.Country)
	}

	buckets := reconcile.Reconcile(templates, rs.Birth, rs.Records)

	view := &View{
		Buckets:  buckets,
		Summary:  reconcile.Summarize(buckets),
		Complete: reconcile.Complete(buckets),
		Records:  rs.Records,
		Country:  rs.Country,
	}

	v.opts.Cache.Set(cacheKey, view, v.opts.CacheTTL)

	logger.Debug("Returning reconciled view", zap.Int("buckets", len(buckets)))

	return view, nil
}

func (v *Vaccine) Create(ctx context.Context, childID string, payload *immunize.VaccinePayload) (*reconcile.VaccineRecord, error) {
	raw, err := v.opts.Backend.CreateVaccine(ctx, childID, payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vaccine")
	}

	record := ParseRecord(*raw)

	v.afterChange(ctx, events.TypeVaccineCreated, childID, record.ID, record.Name)

	return &record, nil
}

func (v *Vaccine) Update(ctx context.Context, childID, recordID string, payload *immunize.VaccinePayload) (*reconcile.VaccineRecord, error) {
	raw, err := v.opts.Backend.UpdateVaccine(ctx, childID, recordID, payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update vaccine")
	}

	record := ParseRecord(*raw)

	v.afterChange(ctx, events.TypeVaccineUpdated, childID, record.ID, record.Name)

	return &record, nil
}

func (v *Vaccine) Delete(ctx context.Context, childID, recordID string) error {
	if err := v.opts.Backend.DeleteVaccine(ctx, childID, recordID); err != nil {
		return errors.Wrap(err, "failed to delete vaccine")
	}

	v.afterChange(ctx, events.TypeVaccineDeleted, childID, recordID, "")

	return nil
}

func (v *Vaccine) Invalidate(childID string) {
	v.opts.Cache.Remove(cache.Key(cache.RecordsPrefix, childID))
	v.opts.Cache.Remove(cache.Key(cache.ImmunizationsPrefix, childID))
}

// afterChange invalidates local caches and emits a change event. Event
// emission is best-effort: a record mutation that already succeeded upstream
// must not be reported as failed because the bus is down.
func (v *Vaccine) afterChange(ctx context.Context, eventType, childID, recordID, name string) {
	v.Invalidate(childID)

	err := v.opts.Publisher.PublishVaccineChangeEvent(ctx, eventType, &events.VaccineChange{
		ChildID:  childID,
		RecordID: recordID,
		Name:     name,
	})
	if err != nil {
		v.log.Warn("failed to publish vaccine change event",
			zap.String("eventType", eventType),
			zap.String("childId", childID),
			zap.Error(err))
	}
}
