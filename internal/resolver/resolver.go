package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/declare"
	"github.com/xraph/locator/logger"
)

const (
	// OwnerStatic owns every catalog entry published by the resolver.
	OwnerStatic = "static"

	// PropStatic marks entries built by the resolver.
	PropStatic = "locator.static"

	tracerName = "github.com/xraph/locator/resolver"
)

// Mode names used for spans and metrics.
const (
	ModeSingle = "single"
	ModeAll    = "all"
)

// Recorder receives resolution measurements.
type Recorder interface {
	ResolveObserved(mode string, d time.Duration, err error)
	CacheHit()
}

// Sources returns the descriptor trees to search, in attach order.
type Sources func() []declare.Resource

// Resolver builds capability instances on demand from declarations, without
// waiting for the dependency graph to settle.
//
// Lookups consult the catalog first. Otherwise candidates are tried from the
// dependency-aware channel of every resource, then from the dependency-free
// channel, and the first that builds wins. Built instances are memoized per
// implementation identity and published into the catalog so later lookups
// and latched components can see them.
type Resolver struct {
	registry *capability.Registry
	catalog  *catalog.Catalog
	sources  Sources
	prefixes declare.Prefixes
	maxDepth int
	logger   logger.Logger
	tracer   trace.Tracer
	recorder Recorder

	cache *cache

	mu      sync.Mutex
	entries []*catalog.Entry
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

func WithPrefixes(p declare.Prefixes) Option {
	return func(r *Resolver) {
		r.prefixes = p
	}
}

// WithMaxDepth bounds the length of a dependency path. Zero disables the
// bound; cycles are still detected.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		r.maxDepth = n
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) {
		r.tracer = tp.Tracer(tracerName)
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// New creates a resolver over the declarations returned by sources.
func New(reg *capability.Registry, cat *catalog.Catalog, sources Sources, opts ...Option) *Resolver {
	r := &Resolver{
		registry: reg,
		catalog:  cat,
		sources:  sources,
		prefixes: declare.DefaultPrefixes(),
		maxDepth: 64,
		logger:   logger.NewNoopLogger(),
		tracer:   otel.Tracer(tracerName),
		cache:    newCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSingle returns one instance of capability.
func (r *Resolver) ResolveSingle(ctx context.Context, capName string) (any, error) {
	ctx, span := r.tracer.Start(ctx, "locator.resolve",
		trace.WithAttributes(
			attribute.String("locator.capability", capName),
			attribute.String("locator.mode", ModeSingle),
		))
	defer span.End()

	start := time.Now()
	instance, err := r.resolveSingle(ctx, newResolution(r.maxDepth), capName)
	r.observe(span, ModeSingle, start, err)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ResolveAll builds every candidate of capability that can be built and
// returns a live view of everything published for it. Failed candidates
// are skipped. With nonEmpty, an empty result is an error.
func (r *Resolver) ResolveAll(ctx context.Context, capName string, nonEmpty bool) (*catalog.View, error) {
	ctx, span := r.tracer.Start(ctx, "locator.resolve",
		trace.WithAttributes(
			attribute.String("locator.capability", capName),
			attribute.String("locator.mode", ModeAll),
			attribute.Bool("locator.non_empty", nonEmpty),
		))
	defer span.End()

	start := time.Now()
	view, err := r.resolveAll(ctx, newResolution(r.maxDepth), capName, nonEmpty)
	r.observe(span, ModeAll, start, err)
	return view, err
}

func (r *Resolver) observe(span trace.Span, mode string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if r.recorder != nil {
		r.recorder.ResolveObserved(mode, time.Since(start), err)
	}
}

func (r *Resolver) resolveSingle(ctx context.Context, res *resolution, capName string) (any, error) {
	if e, ok := r.catalog.First(capName); ok {
		return e.Instance, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := res.enter(capName); err != nil {
		return nil, err
	}
	defer res.leave()

	decls, declErrs := r.Candidates(capName)

	var lastErr error
	for _, d := range decls {
		instance, err := r.build(ctx, res, d)
		if err == nil {
			return instance, nil
		}
		r.logger.Debug("candidate failed",
			logger.Capability(capName),
			logger.Implementation(d.Implementation),
			logger.Error(err),
		)
		lastErr = err
	}

	if lastErr == nil {
		if len(declErrs) > 0 {
			lastErr = declErrs[len(declErrs)-1]
		} else {
			lastErr = fmt.Errorf("no declarations found")
		}
	}
	return nil, errors.ErrCapabilityUnresolved(capName, lastErr)
}

func (r *Resolver) resolveAll(ctx context.Context, res *resolution, capName string, nonEmpty bool) (*catalog.View, error) {
	view := r.catalog.View(capName, nil)
	if err := ctx.Err(); err != nil {
		return view, err
	}

	if err := res.enter(capName); err != nil {
		// Already being resolved further up this path; serve what is live.
		if nonEmpty && view.Len() == 0 {
			return view, errors.ErrEmptyRequiredCollection(capName, err)
		}
		return view, nil
	}
	defer res.leave()

	decls, declErrs := r.Candidates(capName)

	// Implementations a latched component already publishes are served
	// from the catalog.
	live := make(map[string]bool)
	for _, e := range view.Entries() {
		if e.Owner != OwnerStatic {
			live[e.Properties().Text(capability.PropComponentName)] = true
		}
	}

	var lastErr error
	for _, d := range decls {
		if live[d.Implementation] {
			continue
		}
		if _, err := r.build(ctx, res, d); err != nil {
			r.logger.Debug("candidate skipped",
				logger.Capability(capName),
				logger.Implementation(d.Implementation),
				logger.Error(err),
			)
			lastErr = err
		}
	}

	if nonEmpty && view.Len() == 0 {
		if lastErr == nil && len(declErrs) > 0 {
			lastErr = declErrs[len(declErrs)-1]
		}
		return view, errors.ErrEmptyRequiredCollection(capName, lastErr)
	}
	return view, nil
}

// build returns the memoized instance of d's implementation, constructing
// it and its dependencies first when needed.
func (r *Resolver) build(ctx context.Context, res *resolution, d declare.Declaration) (any, error) {
	desc, err := r.registry.Describe(d.Capability, d.Implementation, d.Properties, d.Independent(), d.Origin())
	if err != nil {
		return nil, err
	}
	impl := desc.Implementation
	if desc.Independent && !impl.Independent() {
		return nil, errors.ErrMalformedDeclaration(d.Path, d.Line, d.Implementation,
			fmt.Errorf("declared without dependencies but requires %d", len(impl.Dependencies)))
	}

	if instance, ok := r.cache.get(impl.Identity); ok {
		if r.recorder != nil {
			r.recorder.CacheHit()
		}
		r.publish(desc, instance)
		return instance, nil
	}

	if err := res.build(impl.Identity); err != nil {
		return nil, err
	}
	defer res.built()

	ctx, span := r.tracer.Start(ctx, "locator.build",
		trace.WithAttributes(
			attribute.String("locator.capability", d.Capability),
			attribute.String("locator.implementation", impl.Identity),
			attribute.String("locator.origin", desc.Origin.String()),
			attribute.Int("locator.depth", res.depth()),
		))
	defer span.End()

	args := make([]any, len(impl.Dependencies))
	for i, dep := range impl.Dependencies {
		switch dep.Multiplicity {
		case capability.Single:
			v, err := r.resolveSingle(ctx, res, dep.Capability)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			args[i] = v
		default:
			view, err := r.resolveAll(ctx, res, dep.Capability, dep.Multiplicity == capability.RequiredMany)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			args[i] = view
		}
	}

	instance, err := impl.Instantiate(args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	survivor, stored := r.cache.insert(impl.Identity, instance)
	if !stored {
		// Another goroutine built the same implementation first.
		r.dispose(instance)
	}
	r.publish(desc, survivor)

	r.logger.Debug("implementation built",
		logger.Capability(d.Capability),
		logger.Implementation(impl.Identity),
		logger.String("origin", desc.Origin.String()),
	)
	return survivor, nil
}

// publish adds instance to the catalog under desc's capability the first
// time it is built or found for that capability.
func (r *Resolver) publish(desc *capability.Descriptor, instance any) {
	if !r.cache.claimPublication(desc.Implementation.Identity, desc.Capability) {
		return
	}
	props := desc.PublishProperties()
	props[PropStatic] = true
	e := r.catalog.Publish(desc.Capability, instance, props, OwnerStatic)

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Candidates returns the declarations for capName in resolution order:
// the dependency-aware channel of every resource, then the dependency-free
// channel. Malformed lines are returned separately.
func (r *Resolver) Candidates(capName string) ([]declare.Declaration, []error) {
	var (
		decls []declare.Declaration
		errs  []error
	)
	resources := r.sources()
	for _, ch := range []declare.Channel{declare.Components, declare.Services} {
		for _, res := range resources {
			found, bad := declare.Lookup(res, r.prefixes, ch, capName)
			decls = append(decls, found...)
			errs = append(errs, bad...)
		}
	}
	for _, err := range errs {
		r.logger.Warn("skipping malformed declaration", logger.Capability(capName), logger.Error(err))
	}
	return decls, errs
}

// Cached returns the number of memoized implementations.
func (r *Resolver) Cached() int {
	return r.cache.len()
}

// Reset withdraws every entry the resolver published, drops the memo cache,
// and disposes the instances it held.
func (r *Resolver) Reset() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, e := range entries {
		r.catalog.Withdraw(e)
	}
	for _, instance := range r.cache.reset() {
		r.dispose(instance)
	}
}

func (r *Resolver) dispose(instance any) {
	if err := capability.Dispose(instance); err != nil {
		r.logger.Warn("dispose failed", logger.Error(err))
	}
}
