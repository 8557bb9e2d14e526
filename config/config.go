// Package config loads restkit configuration from defaults, an optional YAML file and
// environment variables, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read by Load.
	// RESTKIT_CLIENT_BASEURL maps to client.baseurl.
	EnvPrefix = "RESTKIT_"
	// DefaultFile is the YAML file Load reads when present.
	DefaultFile = "restkit.yaml"
	// EndpointStdout sends telemetry to standard output instead of a collector.
	EndpointStdout = "stdout"
)

// Environment names accepted in app.env.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	file        string
	requireFile bool
	environ     func() []string
}

// WithFile reads path instead of DefaultFile and fails when it is missing.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.file = path
		o.requireFile = true
	}
}

// WithEnviron replaces os.Environ as the environment source.
func WithEnviron(environ func() []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load builds a Config with priority:
// 1. environment variables prefixed with EnvPrefix (highest)
// 2. the YAML file (DefaultFile when present, or the one given by WithFile)
// 3. defaults (lowest)
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{file: DefaultFile, environ: os.Environ}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(file.Provider(o.file), yaml.Parser()); err != nil {
		if o.requireFile || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", o.file, err)
		}
	}

	if err := loadEnv(k, o.environ); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return finalize(k)
}

// LoadFromBytes builds a Config from defaults overlaid with a YAML document.
// Environment variables are not consulted.
func LoadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return finalize(k)
}

func finalize(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf, environ func() []string) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix)
			// RESTKIT_CLIENT_BASEURL -> client.baseurl
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
		EnvironFunc: environ,
	}), nil)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name": "restkit",
		"app.env":  EnvDevelopment,

		"client.baseurl": "http://localhost:3000",
		"client.timeout": "10s",
		"client.headers": map[string]any{
			"Content-Type": "application/json",
		},
		"client.retries":             0,
		"client.retrydelay":          "0s",
		"client.logpayloads":         false,
		"client.maxpayloadlogbytes":  1024,
		"client.requestidheader":     "X-Request-ID",
		"client.w3ctrace":            false,
		"client.ratelimit.rps":       0,
		"client.ratelimit.burst":     0,
		"client.breaker.enabled":     false,
		"client.breaker.maxfailures": 5,
		"client.breaker.opentimeout": "30s",

		"auth.tokenenv": "",

		"log.level":  "info",
		"log.pretty": false,

		"observability.enabled":          false,
		"observability.servicename":      "restkit",
		"observability.serviceversion":   "dev",
		"observability.trace.enabled":    true,
		"observability.trace.endpoint":   EndpointStdout,
		"observability.trace.protocol":   "http",
		"observability.trace.samplerate": 1.0,
		"observability.metrics.enabled":  true,
		"observability.metrics.endpoint": EndpointStdout,
		"observability.metrics.protocol": "http",
		"observability.metrics.interval": "15s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
