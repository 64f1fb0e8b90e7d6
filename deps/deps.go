package deps

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/InVisionApp/go-health"
	"github.com/InVisionApp/go-health/checkers"
	"github.com/bsm/redislock"
	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/nrzap"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/streamdal/rabbit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/backends/state"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/config"
	"github.com/sproutcare/sprout-api/services/child"
	"github.com/sproutcare/sprout-api/services/processor"
	"github.com/sproutcare/sprout-api/services/publisher"
	"github.com/sproutcare/sprout-api/services/schedule"
	"github.com/sproutcare/sprout-api/services/vaccine"
)

const (
	DefaultHealthCheckIntervalSecs = 1
)

type customCheck struct{}

type Dependencies struct {
	// Backends
	ProcessorRabbitBackend rabbit.IRabbit
	PublisherRabbitBackend rabbit.IRabbit
	CacheBackend           cache.ICache
	StateBackend           state.IState
	ImmunizeBackend        immunize.IImmunize
	RedisClient            *redis.Client

	// Services
	ProcessorService processor.IProcessor
	PublisherService publisher.IPublisher
	ScheduleService  schedule.ISchedule
	VaccineService   vaccine.IVaccine
	ChildService     child.IChild

	Health health.IHealth

	// Global, shared shutdown context - all services and backends listen to
	// this context to know when to shutdown.
	ShutdownCtx context.Context

	// ShutdownCancel is the cancel function for the global shutdown context
	ShutdownCancel context.CancelFunc

	// Channel written to by publisher when it's done shutting down; read by
	// shutdown handler in main(). We need this so that we can tell the shutdown
	// handler when it is safe to exit.
	PublisherShutdownDoneCh chan struct{}

	NewRelicApp *newrelic.Application
	Config      *config.Config

	// Log is the main, shared logger (you should use this for all logging)
	Log clog.ICustomLog

	// ZapLog is the zap logger (you shouldn't need this outside of deps)
	ZapLog *zap.Logger

	// ZapCore can be used to generate a brand-new logger (you shouldn't need this very often)
	ZapCore zapcore.Core
}

func New(cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dependencies{
		ShutdownCtx:             ctx,
		ShutdownCancel:          cancel,
		PublisherShutdownDoneCh: make(chan struct{}),
		Config:                  cfg,
	}

	// NewRelic setup must occur before logging setup
	if err := d.setupNewRelic(); err != nil {
		return nil, errors.Wrap(err, "unable to setup newrelic")
	}

	if err := d.setupLogging(); err != nil {
		return nil, errors.Wrap(err, "unable to setup logging")
	}

	if err := d.setupBackends(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup backends")
	}

	if err := d.setupHealth(); err != nil {
		return nil, errors.Wrap(err, "unable to setup health")
	}

	if err := d.Health.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start health runner")
	}

	if err := d.setupServices(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup services")
	}

	return d, nil
}

func (d *Dependencies) setupNewRelic() error {
	if d.Config.NewRelicAppName == "" || d.Config.NewRelicLicenseKey == "" {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(d.Config.NewRelicAppName),
		newrelic.ConfigLicense(d.Config.NewRelicLicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigZapAttributesEncoder(true),
	)

	if err != nil {
		return errors.Wrap(err, "unable to create newrelic app")
	}

	if err := app.WaitForConnection(10 * time.Second); err != nil {
		return errors.Wrap(err, "unable to connect to newrelic")
	}

	d.NewRelicApp = app

	return nil
}

// If using New Relic, setupLogging() should be called _after_ setupNewRelic()
func (d *Dependencies) setupLogging() error {
	var core zapcore.Core

	if d.Config.LogConfig == "dev" {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		core = zapcore.NewCore(zapcore.NewConsoleEncoder(zc.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.DebugLevel,
		)
	} else {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		)
	}

	// If using New Relic, wrap zap core with New Relic core
	if d.NewRelicApp != nil {
		var err error

		core, err = nrzap.WrapBackgroundCore(core, d.NewRelicApp)
		if err != nil {
			return errors.Wrap(err, "unable to wrap zap core with newrelic")
		}
	}

	// Save the actual loggers
	d.ZapLog = zap.New(core)
	d.ZapCore = core

	// Create a new primary logger that will be passed to everyone
	d.Log = clog.New(d.ZapLog, zap.String("env", d.Config.EnvName))

	d.Log.Debug("Logging initialized")

	return nil
}

func (d *Dependencies) setupHealth() error {
	logger := d.Log.With(zap.String("method", "setupHealth"))
	logger.Debug("Setting up health")

	gohealth := health.New()
	gohealth.DisableLogging()

	cc := &customCheck{}

	hcfg := []*health.Config{
		{
			Name:     "health-check",
			Checker:  cc,
			Interval: time.Duration(DefaultHealthCheckIntervalSecs) * time.Second,
			Fatal:    true,
		},
	}

	// Check the upstream immunization API; without it we can't serve anything
	// except cached views.
	upstreamURL, err := url.Parse(d.Config.ImmunizeAPIURL + "/api/v1/schedules")
	if err != nil {
		return errors.Wrap(err, "unable to parse immunize API URL")
	}

	upstreamChecker, err := checkers.NewHTTP(&checkers.HTTPConfig{
		URL: upstreamURL,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create upstream HTTP checker")
	}

	hcfg = append(hcfg, &health.Config{
		Name:     "immunize-api",
		Checker:  upstreamChecker,
		Interval: time.Duration(d.Config.HealthFreqSec) * time.Second,
		Fatal:    false,
	})

	if err := gohealth.AddChecks(hcfg); err != nil {
		return err
	}

	d.Health = gohealth

	return nil
}

func (d *Dependencies) setupBackends(cfg *config.Config) error {
	llog := d.Log.With(zap.String("method", "setupBackends"))

	llog.Debug("Setting up cache backend")

	// CacheBackend k/v store
	cb, err := cache.New()
	if err != nil {
		return errors.Wrap(err, "unable to create new cache instance")
	}

	d.CacheBackend = cb

	llog.Debug("Setting up redis state backend")

	d.RedisClient = redis.NewClient(&redis.Options{
		Addr:        cfg.RedisURL,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDatabase,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: cfg.RedisDialTimeout,
	})

	stateBackend, err := state.New(&state.Options{
		Prefix:      cfg.RedisStatePrefix,
		Log:         d.Log,
		RedisClient: d.RedisClient,
		RedisLock:   redislock.New(d.RedisClient),
	})
	if err != nil {
		return errors.Wrap(err, "unable to create state backend")
	}

	d.StateBackend = stateBackend

	llog.Debug("Setting up immunize backend")

	immunizeBackend, err := immunize.New(&immunize.Options{
		BaseURL: cfg.ImmunizeAPIURL,
		Token:   cfg.ImmunizeAPIToken,
		Log:     d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create immunize backend")
	}

	d.ImmunizeBackend = immunizeBackend

	llog.Debug("Setting up rabbit backend")

	// RabbitMQ backend for processing messages
	procRabbitBackend, err := rabbit.New(&rabbit.Options{
		URLs:      cfg.ProcessorRabbitURL,
		Mode:      rabbit.Consumer,
		QueueName: cfg.ProcessorRabbitQueueName,
		Bindings: []rabbit.Binding{
			{
				ExchangeName:    cfg.ProcessorRabbitExchangeName,
				ExchangeType:    cfg.ProcessorRabbitExchangeType,
				ExchangeDeclare: cfg.ProcessorRabbitExchangeDeclare,
				ExchangeDurable: cfg.ProcessorRabbitExchangeDurable,
				BindingKeys:     cfg.ProcessorRabbitBindingKeys,
			},
		},
		RetryReconnectSec: rabbit.DefaultRetryReconnectSec,
		QueueDurable:      cfg.ProcessorRabbitQueueDurable,
		QueueExclusive:    cfg.ProcessorRabbitQueueExclusive,
		QueueAutoDelete:   cfg.ProcessorRabbitQueueAutoDelete,
		QueueDeclare:      cfg.ProcessorRabbitQueueDeclare,
		AutoAck:           cfg.ProcessorRabbitAutoAck,
		AppID:             cfg.ServiceName + "-processor",
		UseTLS:            cfg.ProcessorRabbitUseTLS,
		SkipVerifyTLS:     cfg.ProcessorRabbitSkipVerifyTLS,
		Log:               d.ZapLog.Sugar(), // TODO: This won't include base attributes
	})
	if err != nil {
		return errors.Wrap(err, "unable to create rabbit backend for processor")
	}

	d.ProcessorRabbitBackend = procRabbitBackend

	// RabbitMQ backend for publishing
	pubRabbitBackend, err := rabbit.New(&rabbit.Options{
		URLs: cfg.PublisherRabbitURL,
		Bindings: []rabbit.Binding{
			{
				ExchangeName:       cfg.PublisherRabbitExchangeName,
				ExchangeType:       cfg.PublisherRabbitExchangeType,
				ExchangeDeclare:    cfg.PublisherRabbitExchangeDeclare,
				ExchangeDurable:    cfg.PublisherRabbitExchangeDurable,
				ExchangeAutoDelete: cfg.PublisherRabbitExchangeAutoDelete,
			},
		},
		Mode:              rabbit.Producer,
		RetryReconnectSec: rabbit.DefaultRetryReconnectSec,
		AppID:             cfg.ServiceName + "-publisher",
		UseTLS:            cfg.PublisherRabbitUseTLS,
		SkipVerifyTLS:     cfg.PublisherRabbitSkipVerifyTLS,
		Log:               d.ZapLog.Sugar(), // TODO: This won't include base attributes
	})
	if err != nil {
		return errors.Wrap(err, "unable to create rabbit backend for publisher")
	}

	d.PublisherRabbitBackend = pubRabbitBackend

	return nil
}

func (d *Dependencies) setupServices(cfg *config.Config) error {
	logger := d.Log.With(zap.String("method", "setupServices"))
	logger.Debug("Setting up services")

	// Setup service that will publish messages to RabbitMQ
	pubService, err := publisher.New(&publisher.Options{
		RabbitBackend:          d.PublisherRabbitBackend,
		NumWorkers:             cfg.PublisherNumWorkers,
		ExternalShutdownCtx:    d.ShutdownCtx,
		ExternalShutdownDoneCh: d.PublisherShutdownDoneCh,
		NewRelic:               d.NewRelicApp,
		Log:                    d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create new publisher")
	}

	if err := pubService.Start(); err != nil {
		return errors.Wrap(err, "unable to start publisher")
	}

	d.PublisherService = pubService

	scheduleService, err := schedule.New(&schedule.Options{
		Backend:  d.ImmunizeBackend,
		Cache:    d.CacheBackend,
		CacheTTL: cfg.ScheduleCacheTTL,
		Log:      d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create schedule service")
	}

	d.ScheduleService = scheduleService

	vaccineService, err := vaccine.New(&vaccine.Options{
		Backend:   d.ImmunizeBackend,
		Schedule:  d.ScheduleService,
		Cache:     d.CacheBackend,
		Publisher: d.PublisherService,
		CacheTTL:  cfg.RecordsCacheTTL,
		Log:       d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create vaccine service")
	}

	d.VaccineService = vaccineService

	childService, err := child.New(&child.Options{
		Backend:     d.StateBackend,
		Cache:       d.CacheBackend,
		Immunize:    d.ImmunizeBackend,
		Publisher:   d.PublisherService,
		Vaccine:     d.VaccineService,
		Log:         d.Log,
		ShutdownCtx: d.ShutdownCtx,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create child service")
	}

	d.ChildService = childService

	// Setup service that will consume and process messages from RabbitMQ
	procService, err := processor.New(&processor.Options{
		VaccineService: d.VaccineService,
		RabbitMap: map[string]*processor.RabbitConfig{
			"main": {
				RabbitInstance: d.ProcessorRabbitBackend,
				NumConsumers:   cfg.ProcessorRabbitNumConsumers,
				Func:           "ConsumeFunc",
			},
		},
		NewRelic:    d.NewRelicApp,
		Log:         d.Log,
		ShutdownCtx: d.ShutdownCtx,
	}, cfg)
	if err != nil {
		return errors.Wrap(err, "unable to setup proc service")
	}

	d.ProcessorService = procService

	return nil
}

// Status satisfies the go-health.ICheckable interface
func (c *customCheck) Status() (interface{}, error) {
	if false {
		return nil, errors.New("something major just broke")
	}

	// You can return additional information pertaining to the check as long
	// as it can be JSON marshalled
	return map[string]int{}, nil
}
