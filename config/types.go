package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the complete restkit configuration. The embedded koanf instance keeps
// access to keys that are not mapped onto the struct.
type Config struct {
	App    AppConfig    `koanf:"app" json:"app" yaml:"app" mapstructure:"app"`
	Client ClientConfig `koanf:"client" json:"client" yaml:"client" mapstructure:"client"`
	Auth   AuthConfig   `koanf:"auth" json:"auth" yaml:"auth" mapstructure:"auth"`
	Log    LogConfig    `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`

	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability" mapstructure:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// AppConfig identifies the application using the client.
type AppConfig struct {
	Name string `koanf:"name" json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Env  string `koanf:"env" json:"env" yaml:"env" mapstructure:"env" validate:"oneof=development staging production"`
}

// ClientConfig configures the REST client for the single backend it talks to.
type ClientConfig struct {
	// BaseURL is the absolute URL relative request paths resolve against.
	BaseURL string `koanf:"baseurl" json:"baseurl" yaml:"baseurl" mapstructure:"baseurl" validate:"required,url"`
	// Timeout bounds each attempt, not the whole call including retries.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	// Headers are sent with every request unless the request overrides them.
	Headers map[string]string `koanf:"headers" json:"headers" yaml:"headers" mapstructure:"headers"`
	// Retries is the default retry budget for network failures. Requests may override it.
	Retries int `koanf:"retries" json:"retries" yaml:"retries" mapstructure:"retries" validate:"gte=0"`
	// RetryDelay is the pause between a failed attempt and its retry.
	RetryDelay time.Duration `koanf:"retrydelay" json:"retrydelay" yaml:"retrydelay" mapstructure:"retrydelay" validate:"gte=0"`

	LogPayloads        bool `koanf:"logpayloads" json:"logpayloads" yaml:"logpayloads" mapstructure:"logpayloads"`
	MaxPayloadLogBytes int  `koanf:"maxpayloadlogbytes" json:"maxpayloadlogbytes" yaml:"maxpayloadlogbytes" mapstructure:"maxpayloadlogbytes" validate:"gte=0"`

	RequestIDHeader string `koanf:"requestidheader" json:"requestidheader" yaml:"requestidheader" mapstructure:"requestidheader"`
	W3CTrace        bool   `koanf:"w3ctrace" json:"w3ctrace" yaml:"w3ctrace" mapstructure:"w3ctrace"`

	RateLimit RateLimitConfig `koanf:"ratelimit" json:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit"`
	Breaker   BreakerConfig   `koanf:"breaker" json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

// RateLimitConfig throttles outgoing attempts. Zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" json:"rps" yaml:"rps" mapstructure:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker guarding the backend.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// MaxFailures is the number of consecutive network failures that opens the circuit.
	MaxFailures uint32 `koanf:"maxfailures" json:"maxfailures" yaml:"maxfailures" mapstructure:"maxfailures" validate:"required_if=Enabled true"`
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration `koanf:"opentimeout" json:"opentimeout" yaml:"opentimeout" mapstructure:"opentimeout" validate:"gte=0"`
}

// AuthConfig selects where bearer tokens come from.
type AuthConfig struct {
	// TokenEnv names an environment variable read on every request. Empty disables it.
	TokenEnv string `koanf:"tokenenv" json:"tokenenv" yaml:"tokenenv" mapstructure:"tokenenv"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// ObservabilityConfig configures export of the client's spans and metrics.
type ObservabilityConfig struct {
	Enabled        bool   `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName    string `koanf:"servicename" json:"servicename" yaml:"servicename" mapstructure:"servicename"`
	ServiceVersion string `koanf:"serviceversion" json:"serviceversion" yaml:"serviceversion" mapstructure:"serviceversion"`

	Trace   ExporterConfig `koanf:"trace" json:"trace" yaml:"trace" mapstructure:"trace"`
	Metrics ExporterConfig `koanf:"metrics" json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// ExporterConfig selects where one signal is exported.
// Endpoint "stdout" prints to standard output; anything else is an OTLP collector address.
type ExporterConfig struct {
	Enabled  bool              `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Endpoint string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol" mapstructure:"protocol" validate:"oneof=http grpc"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure" mapstructure:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"headers" yaml:"headers" mapstructure:"headers"`
	// SampleRate applies to traces only.
	SampleRate float64 `koanf:"samplerate" json:"samplerate" yaml:"samplerate" mapstructure:"samplerate" validate:"gte=0,lte=1"`
	// Interval applies to metrics only.
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// Koanf exposes the underlying koanf instance for custom keys.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}
