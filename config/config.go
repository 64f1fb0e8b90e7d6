package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	EnvFile         = ".env"
	EnvConfigPrefix = "SPROUT_API"
)

type Config struct {
	Version          kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`
	EnvName          string           `kong:"help='Environment name.',default='dev'"`
	ServiceName      string           `kong:"help='Service name.',default='sprout-api'"`
	HealthFreqSec    int              `kong:"help='Health check frequency in seconds.',default=10"`
	EnablePprof      bool             `kong:"help='Enable pprof endpoints (http://$apiListenAddress/debug).',default=false"`
	APIListenAddress string           `kong:"help='API listen address (serves health, metrics, version).',default=:8080"`
	LogConfig        string           `kong:"help='Logging config to use.',enum='dev,prod',default='dev'"`

	NewRelicAppName    string `kong:"help='New Relic application name.',default='sprout-api (DEV)'"`
	NewRelicLicenseKey string `kong:"help='New Relic license key.'"`

	// Upstream immunization API (system of record for calendars + records)
	ImmunizeAPIURL   string        `kong:"help='Immunization API base URL.',default='http://localhost:9090'"`
	ImmunizeAPIToken string        `kong:"help='Immunization API bearer token.'"`
	ScheduleCacheTTL time.Duration `kong:"help='How long country calendars are cached.',default=15m"`
	RecordsCacheTTL  time.Duration `kong:"help='How long child record snapshots are cached.',default=2m"`

	RedisURL         string        `kong:"help='Redis URL.',default=localhost:6379"`
	RedisPassword    string        `kong:"help='Redis Password.'"`
	RedisDatabase    int           `kong:"help='Redis database.',default=0"`
	RedisPoolSize    int           `kong:"help='Redis pool size.',default=10"`
	RedisDialTimeout time.Duration `kong:"help='Redis dial timeout.',default=5s"`
	RedisStatePrefix string        `kong:"help='Key prefix for shared state.',default='sprout-api'"`

	ProcessorRabbitURL             []string `kong:"help='Processor RabbitMQ URL(s).',default='amqp://localhost:5672'"`
	ProcessorRabbitQueueName       string   `kong:"help='Processor queue name.',default='sprout-api'"`
	ProcessorRabbitExchangeName    string   `kong:"help='Processor exchange name.',default='events'"`
	ProcessorRabbitExchangeType    string   `kong:"help='Processor exchange type.',default='topic'"`
	ProcessorRabbitExchangeDeclare bool     `kong:"help='Whether to declare the processor exchange.',default=true"`
	ProcessorRabbitExchangeDurable bool     `kong:"help='Whether the processor exchange is durable.',default=true"`
	ProcessorRabbitBindingKeys     []string `kong:"help='Processor binding keys.',default='vaccine.*;schedule.assigned'"`
	ProcessorRabbitQueueDurable    bool     `kong:"help='Whether the processor queue is durable.',default=false"`
	ProcessorRabbitQueueExclusive  bool     `kong:"help='Whether the processor queue is exclusive.',default=true"`
	ProcessorRabbitQueueAutoDelete bool     `kong:"help='Whether the processor queue is auto-deleted.',default=true"`
	ProcessorRabbitQueueDeclare    bool     `kong:"help='Whether to declare the processor queue.',default=true"`
	ProcessorRabbitAutoAck         bool     `kong:"help='Whether to auto-ack processor messages.',default=false"`
	ProcessorRabbitUseTLS          bool     `kong:"help='Whether to use TLS for processor rabbit.',default=false"`
	ProcessorRabbitSkipVerifyTLS   bool     `kong:"help='Whether to skip TLS verification for processor rabbit.',default=false"`
	ProcessorRabbitNumConsumers    int      `kong:"help='Number of processor consumers.',default=10"`

	PublisherRabbitURL                []string `kong:"help='Publisher RabbitMQ URL(s).',default='amqp://localhost:5672'"`
	PublisherRabbitExchangeName       string   `kong:"help='Publisher exchange name.',default='events'"`
	PublisherRabbitExchangeType       string   `kong:"help='Publisher exchange type.',default='topic'"`
	PublisherRabbitExchangeDeclare    bool     `kong:"help='Whether to declare the publisher exchange.',default=true"`
	PublisherRabbitExchangeDurable    bool     `kong:"help='Whether the publisher exchange is durable.',default=true"`
	PublisherRabbitExchangeAutoDelete bool     `kong:"help='Whether the publisher exchange is auto-deleted.',default=false"`
	PublisherRabbitUseTLS             bool     `kong:"help='Whether to use TLS for publisher rabbit.',default=false"`
	PublisherRabbitSkipVerifyTLS      bool     `kong:"help='Whether to skip TLS verification for publisher rabbit.',default=false"`
	PublisherNumWorkers               int      `kong:"help='Number of publisher workers.',default=10"`

	KongContext *kong.Context `kong:"-"`
}

func New(version string) *Config {
	if err := godotenv.Load(EnvFile); err != nil {
		zap.L().Warn("unable to load dotenv file",
			zap.String("err", err.Error()))
	}

	cfg := &Config{}
	cfg.KongContext = kong.Parse(
		cfg,
		kong.Name("sprout-api"),
		kong.Description("Immunization schedule reconciliation service"),
		kong.DefaultEnvars(EnvConfigPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	return cfg
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("Config cannot be nil")
	}

	if c.ImmunizeAPIURL == "" {
		return errors.New("immunize API URL cannot be empty")
	}

	return nil
}

func (c *Config) GetMap() map[string]string {
	fields := make(map[string]string)

	val := reflect.ValueOf(c)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := val.Field(i)
		fields[field.Name] = fmt.Sprintf("%v", value)
	}

	return fields
}
