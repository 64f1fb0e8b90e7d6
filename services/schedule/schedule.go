// Package schedule provides access to country immunization calendars: it
// fetches raw calendars from the upstream API, shapes them into normalized
// dose templates and caches the result.
package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/services/reconcile"
)

const DefaultCacheTTL = 15 * time.Minute

type ISchedule interface {
	// ListCountries returns the calendars available upstream, for the
	// country-picker shown when a child has no assigned schedule.
	ListCountries(ctx context.Context) ([]Country, error)

	// TemplatesForCountry returns the normalized dose templates of one
	// country's calendar. Results are cached; calendars change rarely.
	TemplatesForCountry(ctx context.Context, country string) ([]reconcile.DoseTemplate, error)
}

type Country struct {
	ID   string `json:"countryId"`
	Name string `json:"countryName"`
}

type Schedule struct {
	opts *Options
	log  clog.ICustomLog
}

type Options struct {
	Backend  immunize.IImmunize
	Cache    cache.ICache
	CacheTTL time.Duration
	Log      clog.ICustomLog
}

func New(opts *Options) (*Schedule, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Schedule{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "schedule")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Backend == nil {
		return errors.New("backend cannot be nil")
	}

	if opts.Cache == nil {
		return errors.New("cache cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	return nil
}

func (s *Schedule) ListCountries(ctx context.Context) ([]Country, error) {
	logger := s.log.With(zap.String("method", "ListCountries"))

	raw, err := s.opts.Backend.GetSchedules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch schedules")
	}

	countries := ShapeCountries(raw)

	logger.Debug("Returning countries", zap.Int("count", len(countries)))

	return countries, nil
}

func (s *Schedule) TemplatesForCountry(ctx context.Context, country string) ([]reconcile.DoseTemplate, error) {
	logger := s.log.With(
		zap.String("method", "TemplatesForCountry"),
		zap.String("country", country),
	)

	if country == "" {
		return nil, errors.New("country cannot be empty")
	}

	cacheKey := cache.Key(cache.SchedulePrefix, country)

	if cached, ok := s.opts.Cache.Get(cacheKey); ok {
		if templates, ok := cached.([]reconcile.DoseTemplate); ok {
			logger.Debug("Returning cached templates", zap.Int("count", len(templates)))
			return templates, nil
		}
	}

	raw, err := s.opts.Backend.GetScheduleByCountry(ctx, country)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch schedule for '%s'", country)
	}

	templates := ShapeTemplates(raw)

	s.opts.Cache.Set(cacheKey, templates, s.opts.CacheTTL)

	logger.Debug("Returning templates", zap.Int("count", len(templates)))

	return templates, nil
}
