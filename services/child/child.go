// Package child tracks per-user child selection and the child's calendar
// country assignment. Both live in redis so that every API instance sees the
// same answer; a short local cache sits in front for the hot read path.
package child

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	sb "github.com/sproutcare/sprout-api/backends/state"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/services/publisher"
	"github.com/sproutcare/sprout-api/services/vaccine"
)

const (
	SelectedChildPrefix = "selected-child"
	CountryPrefix       = "country"

	// AssignLockTTL bounds how long a country assignment can hold the
	// per-child lock before redis expires it.
	AssignLockTTL = 10 * time.Second

	cacheTTL = 30 * time.Second
)

var ErrNoSelectedChild = errors.New("no child selected")

type IChild interface {
	GetSelectedChild(ctx context.Context, userID string) (string, error)
	SetSelectedChild(ctx context.Context, userID, childID string) error

	GetAssignedCountry(ctx context.Context, childID string) (string, error)

	// AssignCountry binds a child to a country calendar upstream and records
	// the assignment in state. Safe to call concurrently across instances.
	AssignCountry(ctx context.Context, childID, country string) error
}

type Child struct {
	opts *Options
	log  clog.ICustomLog
}

type Options struct {
	Backend     sb.IState
	Cache       cache.ICache
	Immunize    immunize.IImmunize
	Publisher   publisher.IPublisher
	Vaccine     vaccine.IVaccine
	Log         clog.ICustomLog
	ShutdownCtx context.Context
}

func New(opts *Options) (*Child, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Child{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "child")),
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

	if opts.Immunize == nil {
		return errors.New("immunize backend cannot be nil")
	}

	if opts.Publisher == nil {
		return errors.New("publisher cannot be nil")
	}

	if opts.Vaccine == nil {
		return errors.New("vaccine service cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	if opts.ShutdownCtx == nil {
		return errors.New("shutdown context cannot be nil")
	}

	return nil
}

func (c *Child) GetSelectedChild(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("userID cannot be empty")
	}

	if ctx == nil {
		ctx = c.opts.ShutdownCtx
	}

	cacheKey := cache.Key(cache.SelectedChildPrefix, userID)

	if cached, ok := c.opts.Cache.Get(cacheKey); ok {
		if childID, ok := cached.(string); ok {
			return childID, nil
		}
	}

	childID, err := c.opts.Backend.Get(ctx, userID, SelectedChildPrefix)
	if err != nil {
		if errors.Is(err, sb.ErrDoesNotExist) {
			return "", ErrNoSelectedChild
		}

		return "", errors.Wrap(err, "failed to get selected child")
	}

	c.opts.Cache.Set(cacheKey, childID, cacheTTL)

	return childID, nil
}

func (c *Child) SetSelectedChild(ctx context.Context, userID, childID string) error {
	if userID == "" || childID == "" {
		return errors.New("userID and childID cannot be empty")
	}

	if ctx == nil {
		ctx = c.opts.ShutdownCtx
	}

	if err := c.opts.Backend.Set(ctx, userID, childID, SelectedChildPrefix); err != nil {
		return errors.Wrap(err, "failed to set selected child")
	}

	c.opts.Cache.Set(cache.Key(cache.SelectedChildPrefix, userID), childID, cacheTTL)

	return nil
}

func (c *Child) GetAssignedCountry(ctx context.Context, childID string) (string, error) {
	if childID == "" {
		return "", errors.New("childID cannot be empty")
	}

	if ctx == nil {
		ctx = c.opts.ShutdownCtx
	}

	cacheKey := cache.Key(cache.CountryPrefix, childID)

	if cached, ok := c.opts.Cache.Get(cacheKey); ok {
		if country, ok := cached.(string); ok {
			return country, nil
		}
	}

	country, err := c.opts.Backend.Get(ctx, childID, CountryPrefix)
	if err != nil {
		if errors.Is(err, sb.ErrDoesNotExist) {
			return "", sb.ErrDoesNotExist
		}

		return "", errors.Wrap(err, "failed to get assigned country")
	}

	c.opts.Cache.Set(cacheKey, country, cacheTTL)

	return country, nil
}

func (c *Child) AssignCountry(ctx context.Context, childID, country string) error {
	logger := c.log.With(
		zap.String("method", "AssignCountry"),
		zap.String("childId", childID),
		zap.String("country", country),
	)

	if childID == "" || country == "" {
		return errors.New("childID and country cannot be empty")
	}

	if ctx == nil {
		ctx = c.opts.ShutdownCtx
	}

	// Lock per child so two instances racing on the same assignment don't
	// interleave the upstream call and the state write.
	lock, err := c.opts.Backend.Obtain(ctx, "assign-country:"+childID, AssignLockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return errors.New("country assignment already in progress")
		}

		return errors.Wrap(err, "failed to obtain assignment lock")
	}

	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("failed to release assignment lock", zap.Error(err))
		}
	}()

	if err := c.opts.Immunize.AssignSchedule(ctx, childID, country); err != nil {
		return errors.Wrap(err, "failed to assign schedule upstream")
	}

	if err := c.opts.Backend.Set(ctx, childID, country, CountryPrefix); err != nil {
		return errors.Wrap(err, "failed to persist country assignment")
	}

	c.opts.Cache.Set(cache.Key(cache.CountryPrefix, childID), country, cacheTTL)

	// The records snapshot now carries a stale needs-country flag.
	c.opts.Vaccine.Invalidate(childID)

	err = c.opts.Publisher.PublishScheduleAssignedEvent(ctx, &events.ScheduleAssigned{
		ChildID: childID,
		Country: country,
	})
	if err != nil {
		logger.Warn("failed to publish schedule assigned event", zap.Error(err))
	}

	logger.Debug("Country assigned")

	return nil
}
