package locator

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/locator/config"
	"github.com/xraph/locator/logger"
)

// Option configures a Runtime.
type Option func(*options) error

type options struct {
	config         *config.Config
	logger         logger.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	staticOnly     *bool
	modules        []Module
	observers      []func(Event)
	registrations  []func(*Runtime) error
}

// WithConfig sets the configuration. Without it the defaults are used,
// overridden by LOCATOR_* environment variables.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithLogger sets the logger. Without it one is built from the logging
// configuration.
func WithLogger(l logger.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithMetricsRegisterer registers the runtime's collectors with reg. When
// reg is also a Gatherer it is served by the debug server.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the provider of resolution spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) error {
		o.tracerProvider = tp
		return nil
	}
}

// WithStaticOnly overrides the configured static-only flag.
func WithStaticOnly(v bool) Option {
	return func(o *options) error {
		o.staticOnly = &v
		return nil
	}
}

// WithModules attaches modules once the runtime is created, after the
// registrations given with WithRegistrations.
func WithModules(modules ...Module) Option {
	return func(o *options) error {
		o.modules = append(o.modules, modules...)
		return nil
	}
}

// WithObserver registers fn for every catalog change from the start.
func WithObserver(fn func(Event)) Option {
	return func(o *options) error {
		o.observers = append(o.observers, fn)
		return nil
	}
}

// WithRegistrations runs fns against the runtime before any module is
// attached, so components can be created for the types they register.
func WithRegistrations(fns ...func(*Runtime) error) Option {
	return func(o *options) error {
		o.registrations = append(o.registrations, fns...)
		return nil
	}
}
