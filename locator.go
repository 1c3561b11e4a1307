// Package locator is a capability-based service locator.
//
// Implementations are declared in descriptor files shipped by modules and
// looked up by the interface type they provide. Two resolution strategies
// share one catalog of published instances:
//
//   - Static resolution builds an instance on demand, trying declared
//     candidates in order and memoizing one instance per implementation.
//   - Latched components publish an implementation as soon as every one of
//     its dependencies is live, and withdraw it as soon as one is lost.
//
// A minimal program registers its capability types and constructors, then
// resolves:
//
//	rt, err := locator.New(
//		locator.WithRegistrations(func(rt *locator.Runtime) error {
//			if err := locator.RegisterCapability[Greeter](rt, ""); err != nil {
//				return err
//			}
//			return rt.RegisterImplementation("example.English", NewEnglish)
//		}),
//		locator.WithModules(locator.NewModule("app", assets)),
//	)
//	...
//	g, err := locator.Get[Greeter](ctx, rt)
package locator

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/xraph/locator/config"
	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/debug"
	"github.com/xraph/locator/internal/declare"
	"github.com/xraph/locator/internal/host"
	"github.com/xraph/locator/internal/latch"
	"github.com/xraph/locator/internal/metrics"
	"github.com/xraph/locator/internal/resolver"
	"github.com/xraph/locator/logger"
)

// Runtime owns the catalog, the registry of capability types and
// constructors, the attached modules and the static resolution cache.
// Everything it creates is torn down by Close.
type Runtime struct {
	cfg      *config.Config
	logger   logger.Logger
	registry *capability.Registry
	catalog  *catalog.Catalog
	host     *host.Host
	resolver *resolver.Resolver
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	debug    *debug.Server
	started  time.Time

	mu          sync.Mutex
	closed      bool
	watcher     *host.Watcher
	cancelWatch context.CancelFunc
	external    []*catalog.Entry
	unobserve   []func()
}

// New creates a runtime and attaches the modules given with WithModules.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg := o.config
	if cfg == nil {
		cfg = config.DefaultConfig()
		if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
			return nil, err
		}
	}
	if o.staticOnly != nil {
		cfg.StaticOnly = *o.staticOnly
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.ErrConfigError("invalid configuration", err)
	}

	log := o.logger
	if log == nil {
		lc := cfg.Logging
		lc.Level = cfg.LogLevel()
		log = logger.NewLogger(lc)
	}
	log = log.Named("locator")

	rt := &Runtime{
		cfg:      cfg,
		logger:   log,
		registry: capability.NewRegistry(),
		started:  time.Now(),
	}

	registerer := o.registerer
	if registerer == nil && cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		registerer, rt.gatherer = reg, reg
	}
	if g, ok := registerer.(prometheus.Gatherer); ok && rt.gatherer == nil {
		rt.gatherer = g
	}
	if registerer != nil {
		m, err := metrics.New(registerer)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		rt.metrics = m
	}

	catOpts := []catalog.Option{catalog.WithLogger(log.Named("catalog"))}
	if rt.metrics != nil {
		catOpts = append(catOpts, catalog.WithRecorder(rt.metrics))
	}
	rt.catalog = catalog.New(catOpts...)

	prefixes := declare.Prefixes{Components: cfg.ComponentsPath, Services: cfg.ServicesPath}

	hostOpts := []host.Option{
		host.WithLogger(log.Named("host")),
		host.WithPrefixes(prefixes),
		host.WithStaticOnly(cfg.StaticOnly),
		host.WithHooks(rt.hooks()),
	}
	if rt.metrics != nil {
		hostOpts = append(hostOpts, host.WithRecorder(rt.metrics))
	}
	rt.host = host.New(rt.registry, rt.catalog, hostOpts...)

	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	resOpts := []resolver.Option{
		resolver.WithLogger(log.Named("resolver")),
		resolver.WithPrefixes(prefixes),
		resolver.WithMaxDepth(cfg.MaxResolutionDepth),
		resolver.WithTracerProvider(tp),
	}
	if rt.metrics != nil {
		resOpts = append(resOpts, resolver.WithRecorder(rt.metrics))
	}
	rt.resolver = resolver.New(rt.registry, rt.catalog, rt.host.Sources, resOpts...)

	for _, fn := range o.observers {
		rt.unobserve = append(rt.unobserve, rt.catalog.Observe(fn))
	}

	for _, reg := range o.registrations {
		if err := reg(rt); err != nil {
			return nil, err
		}
	}
	for _, m := range o.modules {
		if err := rt.Attach(m); err != nil {
			return nil, err
		}
	}

	log.Debug("runtime created",
		logger.Bool("static_only", cfg.StaticOnly),
		logger.Int("modules", len(o.modules)),
	)
	return rt, nil
}

// hooks turns component transitions into metrics and log lines.
func (rt *Runtime) hooks() latch.Hooks {
	return latch.Hooks{
		OnPublish: func(c *latch.Component, e *catalog.Entry) {
			if rt.metrics != nil {
				rt.metrics.Transition(e.Capability, metrics.TransitionPublish)
			}
		},
		OnRepublish: func(c *latch.Component, e *catalog.Entry) {
			if rt.metrics != nil {
				rt.metrics.Transition(e.Capability, metrics.TransitionRepublish)
			}
		},
		OnWithdraw: func(c *latch.Component, e *catalog.Entry) {
			if rt.metrics != nil {
				rt.metrics.Transition(e.Capability, metrics.TransitionWithdraw)
			}
		},
		OnFault: func(c *latch.Component, err error) {
			if rt.metrics != nil {
				rt.metrics.Fault(c.Descriptor().Implementation.Identity)
			}
		},
	}
}

// Config returns the runtime's configuration.
func (rt *Runtime) Config() config.Config {
	return *rt.cfg
}

func (rt *Runtime) Logger() logger.Logger {
	return rt.logger
}

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (rt *Runtime) Gatherer() prometheus.Gatherer {
	return rt.gatherer
}

// Attach adds a module. Unless the runtime is static-only, its declarations
// become latched components immediately.
func (rt *Runtime) Attach(m Module) error {
	if rt.isClosed() {
		return errors.ErrRuntimeClosed
	}
	if err := rt.host.Attach(m); err != nil {
		return err
	}
	if rt.debug != nil {
		rt.debug.ModuleChanged(m.Name, true)
	}
	return nil
}

// Detach removes a module and retires its components.
func (rt *Runtime) Detach(name string) error {
	if rt.isClosed() {
		return errors.ErrRuntimeClosed
	}
	if err := rt.host.Detach(name); err != nil {
		return err
	}
	if rt.debug != nil {
		rt.debug.ModuleChanged(name, false)
	}
	return nil
}

// Modules returns the attached module names in attach order.
func (rt *Runtime) Modules() []string {
	return rt.host.Modules()
}

// Status returns a snapshot of the catalog, the modules and every component.
func (rt *Runtime) Status() Snapshot {
	return debug.Collect(rt.catalog, rt.host, rt.started)
}

// Observe registers fn for every catalog change and returns a function
// removing it. fn runs on the goroutine making the change and must not
// block.
func (rt *Runtime) Observe(fn func(Event)) func() {
	return rt.catalog.Observe(fn)
}

// Start runs the optional services named by the configuration: the module
// directory watcher and the debug server. It returns once they are running.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return errors.ErrRuntimeClosed
	}

	if dir := rt.cfg.Modules.Dir; dir != "" && rt.watcher == nil {
		if _, err := os.Stat(dir); err == nil {
			w, err := host.NewWatcher(rt.host, dir, rt.cfg.Modules.Debounce, rt.logger)
			if err != nil {
				return err
			}
			if err := w.Scan(); err != nil {
				w.Close()
				return err
			}
			if rt.cfg.Modules.Watch {
				watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
				rt.cancelWatch = cancel
				go w.Run(watchCtx)
			}
			rt.watcher = w
		} else {
			rt.logger.Debug("modules directory not found", logger.String("dir", dir))
		}
	}

	if rt.cfg.Debug.Enabled && rt.debug == nil {
		opts := []debug.Option{debug.WithLogger(rt.logger.Named("debug"))}
		if rt.gatherer != nil {
			opts = append(opts, debug.WithGatherer(rt.gatherer))
		}
		if path, err := debug.DefaultRegistryPath(); err == nil {
			opts = append(opts, debug.WithRegistry(path, rt.cfg.Modules.Dir))
		}
		srv := debug.NewServer(rt.cfg.Debug.Addr, rt.Status, opts...)
		if err := srv.Start(); err != nil {
			return err
		}
		rt.unobserve = append(rt.unobserve, rt.catalog.Observe(srv.CatalogEvent))
		rt.debug = srv
	}
	return nil
}

// DebugAddr returns the debug server address, or "" when it is not running.
func (rt *Runtime) DebugAddr() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.debug == nil {
		return ""
	}
	return rt.debug.Addr()
}

// Close stops the watcher and the debug server, retires every component,
// withdraws every instance the runtime published and disposes them.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return rt.host.Close(ctx)
	}
	rt.closed = true
	watcher, cancelWatch, srv := rt.watcher, rt.cancelWatch, rt.debug
	external := rt.external
	rt.external = nil
	unobserve := rt.unobserve
	rt.unobserve = nil
	rt.mu.Unlock()

	var errs []error
	if cancelWatch != nil {
		cancelWatch()
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := rt.host.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	rt.resolver.Reset()
	for _, e := range slices.Backward(external) {
		rt.catalog.Withdraw(e)
	}
	for _, fn := range unobserve {
		fn()
	}

	_ = rt.logger.Sync()
	return errors.Join(errs...)
}

func (rt *Runtime) isClosed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}
