package host

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/declare"
	"github.com/xraph/locator/internal/latch"
	"github.com/xraph/locator/logger"
)

// Module is a unit of declarations attached to the host.
type Module struct {
	Name string
	FS   fs.FS
}

// Recorder receives host gauges.
type Recorder interface {
	Components(n int)
	Modules(n int)
}

// Host attaches modules, turns their declarations into latched components,
// and retires those components when the module goes away.
type Host struct {
	registry      *capability.Registry
	catalog       *catalog.Catalog
	prefixes      declare.Prefixes
	staticOnly    bool
	logger        logger.Logger
	hooks         latch.Hooks
	recorder      Recorder
	shutdownLimit int

	mu       sync.RWMutex
	modules  []*attached
	closed   bool
	retiring chan struct{}
}

type attached struct {
	module       Module
	declarations []declare.Declaration
	components   []*latch.Component
}

// Option configures a Host.
type Option func(*Host)

func WithLogger(l logger.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

func WithPrefixes(p declare.Prefixes) Option {
	return func(h *Host) {
		h.prefixes = p
	}
}

// WithStaticOnly makes attached modules only extend the declaration
// sources; no components are created.
func WithStaticOnly(v bool) Option {
	return func(h *Host) {
		h.staticOnly = v
	}
}

func WithHooks(hooks latch.Hooks) Option {
	return func(h *Host) {
		h.hooks = hooks
	}
}

func WithRecorder(r Recorder) Option {
	return func(h *Host) {
		h.recorder = r
	}
}

// WithShutdownLimit bounds how many components retire concurrently on Close.
func WithShutdownLimit(n int) Option {
	return func(h *Host) {
		h.shutdownLimit = n
	}
}

// New creates a host publishing into cat.
func New(reg *capability.Registry, cat *catalog.Catalog, opts ...Option) *Host {
	h := &Host{
		registry:      reg,
		catalog:       cat,
		prefixes:      declare.DefaultPrefixes(),
		logger:        logger.NewNoopLogger(),
		shutdownLimit: 8,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach scans m and starts a component for every usable declaration.
// Malformed lines and unusable declarations are logged and skipped.
func (h *Host) Attach(m Module) error {
	if m.Name == "" {
		return fmt.Errorf("module name is required")
	}
	if m.FS == nil {
		return fmt.Errorf("module %s has no filesystem", m.Name)
	}

	res := declare.Resource{Module: m.Name, FS: m.FS}
	decls, errs := declare.Scan(res, h.prefixes)
	log := h.logger.With(logger.Module(m.Name))
	for _, err := range errs {
		log.Warn("skipping malformed declaration", logger.Error(err))
	}

	a := &attached{module: m, declarations: decls}
	if !h.staticOnly {
		a.components = h.components(log, decls)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.ErrRuntimeClosed
	}
	if slices.ContainsFunc(h.modules, func(x *attached) bool { return x.module.Name == m.Name }) {
		h.mu.Unlock()
		return fmt.Errorf("module %s is already attached", m.Name)
	}
	h.modules = append(h.modules, a)
	h.mu.Unlock()

	for _, c := range a.components {
		c.Start()
	}
	h.record()

	log.Info("module attached",
		logger.Int("declarations", len(decls)),
		logger.Int("components", len(a.components)),
	)
	return nil
}

func (h *Host) components(log logger.Logger, decls []declare.Declaration) []*latch.Component {
	var out []*latch.Component
	for _, d := range decls {
		desc, err := h.registry.Describe(d.Capability, d.Implementation, d.Properties, d.Independent(), d.Origin())
		if err != nil {
			log.Warn("skipping declaration", logger.Implementation(d.Implementation), logger.Error(err))
			continue
		}
		if desc.Independent && !desc.Implementation.Independent() {
			log.Warn("skipping declaration with dependencies in the dependency-free channel",
				logger.Implementation(d.Implementation),
				logger.String("origin", desc.Origin.String()),
			)
			continue
		}
		out = append(out, latch.New(desc, h.catalog,
			latch.WithLogger(h.logger),
			latch.WithHooks(h.hooks),
		))
	}
	return out
}

// Detach retires every component of module name and removes its
// declarations from the sources.
func (h *Host) Detach(name string) error {
	h.mu.Lock()
	idx := slices.IndexFunc(h.modules, func(x *attached) bool { return x.module.Name == name })
	if idx < 0 {
		h.mu.Unlock()
		return fmt.Errorf("module %s is not attached", name)
	}
	a := h.modules[idx]
	h.modules = slices.Delete(h.modules, idx, idx+1)
	h.mu.Unlock()

	for _, c := range a.components {
		c.Retire()
	}
	h.record()

	h.logger.Info("module detached", logger.Module(name), logger.Int("components", len(a.components)))
	return nil
}

// Reattach replaces the module named m.Name with m, attaching it if absent.
func (h *Host) Reattach(m Module) error {
	if h.Attached(m.Name) {
		if err := h.Detach(m.Name); err != nil {
			return err
		}
	}
	return h.Attach(m)
}

func (h *Host) Attached(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.ContainsFunc(h.modules, func(x *attached) bool { return x.module.Name == name })
}

// Sources returns the descriptor trees of the attached modules in attach
// order.
func (h *Host) Sources() []declare.Resource {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]declare.Resource, len(h.modules))
	for i, a := range h.modules {
		out[i] = declare.Resource{Module: a.module.Name, FS: a.module.FS}
	}
	return out
}

// Modules returns the names of the attached modules in attach order.
func (h *Host) Modules() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.modules))
	for i, a := range h.modules {
		out[i] = a.module.Name
	}
	return out
}

// Declarations returns the declarations of module name.
func (h *Host) Declarations(name string) []declare.Declaration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, a := range h.modules {
		if a.module.Name == name {
			return slices.Clone(a.declarations)
		}
	}
	return nil
}

// Components returns every live component in attach order.
func (h *Host) Components() []*latch.Component {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*latch.Component
	for _, a := range h.modules {
		out = append(out, a.components...)
	}
	return out
}

func (h *Host) StaticOnly() bool {
	return h.staticOnly
}

// Close detaches every module, retiring components concurrently. Further
// attaches fail with ErrRuntimeClosed.
//
// Retirement always runs to completion; ctx only bounds how long Close
// waits for it. A later Close waits for the same retirement.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.retiring == nil {
		h.closed = true
		modules := h.modules
		h.modules = nil
		h.retiring = make(chan struct{})
		go h.retire(modules, h.retiring)
	}
	done := h.retiring
	h.mu.Unlock()

	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.logger.Warn("host close interrupted, components still retiring", logger.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (h *Host) retire(modules []*attached, done chan<- struct{}) {
	defer close(done)

	var g errgroup.Group
	g.SetLimit(h.shutdownLimit)
	for i := len(modules) - 1; i >= 0; i-- {
		for _, c := range modules[i].components {
			g.Go(func() error {
				c.Retire()
				return nil
			})
		}
	}
	_ = g.Wait()
	h.record()
	h.logger.Info("host closed", logger.Int("modules", len(modules)))
}

func (h *Host) record() {
	if h.recorder == nil {
		return
	}
	h.mu.RLock()
	modules := len(h.modules)
	components := 0
	for _, a := range h.modules {
		components += len(a.components)
	}
	h.mu.RUnlock()

	h.recorder.Modules(modules)
	h.recorder.Components(components)
}
