package resolver

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/declare"
)

type greeter interface {
	Greet(name string) string
}

type formatter interface {
	Format(s string) string
}

type store interface {
	Get() string
}

type english struct{}

func (english) Greet(name string) string { return "hello " + name }

type polite struct {
	f formatter
}

func (p *polite) Greet(name string) string { return p.f.Format("good day " + name) }

type upper struct{}

func (upper) Format(s string) string { return strings.ToUpper(s) }

type lower struct{}

func (lower) Format(s string) string { return strings.ToLower(s) }

type chained struct {
	all capability.Many[formatter]
}

func (c *chained) Format(s string) string {
	for f := range c.all.All() {
		s = f.Format(s)
	}
	return s
}

type memStore struct{ v string }

func (m *memStore) Get() string { return m.v }

type fixture struct {
	reg       *capability.Registry
	cat       *catalog.Catalog
	resources []declare.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := capability.NewRegistry()
	_, err := reg.RegisterCapability(reflect.TypeFor[greeter](), "greet.Greeter")
	require.NoError(t, err)
	_, err = reg.RegisterCapability(reflect.TypeFor[formatter](), "greet.Formatter")
	require.NoError(t, err)
	_, err = reg.RegisterCapability(reflect.TypeFor[store](), "greet.Store")
	require.NoError(t, err)

	return &fixture{reg: reg, cat: catalog.New()}
}

func (f *fixture) register(t *testing.T, id string, ctor any) {
	t.Helper()
	_, err := f.reg.RegisterImplementation(id, ctor)
	require.NoError(t, err)
}

func (f *fixture) module(name string, files map[string]string) {
	fsys := fstest.MapFS{}
	for p, content := range files {
		fsys[p] = &fstest.MapFile{Data: []byte(content)}
	}
	f.resources = append(f.resources, declare.Resource{Module: name, FS: fsys})
}

func (f *fixture) resolver(opts ...Option) *Resolver {
	return New(f.reg, f.cat, func() []declare.Resource { return f.resources }, opts...)
}

func TestResolveSingleFallsBackToNextCandidate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("app", map[string]string{
		"META-INF/components/greet.Greeter": "greet.Polite\n",
		"META-INF/services/greet.Greeter":   "greet.English\n",
	})

	r := f.resolver()
	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", got.(greeter).Greet("bob"))
}

func TestResolveSinglePrefersDependencyAwareChannel(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.English", func() greeter { return english{} })
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.module("app", map[string]string{
		"META-INF/components/greet.Greeter": "greet.Polite\n",
		"META-INF/services/greet.Greeter":   "greet.English\n",
		"META-INF/services/greet.Formatter": "greet.Upper\n",
	})

	r := f.resolver()
	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, "GOOD DAY BOB", got.(greeter).Greet("bob"))
}

func TestResolveSingleWithoutDeclarations(t *testing.T) {
	f := newFixture(t)
	r := f.resolver()

	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.IsCapabilityUnresolved(err))
	assert.Equal(t, []string{"greet.Greeter"}, errors.Chain(err))
	assert.Contains(t, err.Error(), "greet.Greeter")
}

func TestResolveSingleChainsUnresolvedDependencies(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.StoreFormatter", func(s store) formatter { return upper{} })
	f.module("app", map[string]string{
		"META-INF/components/greet.Greeter":   "greet.Polite\n",
		"META-INF/components/greet.Formatter": "greet.StoreFormatter\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.Equal(t, []string{"greet.Store", "greet.Formatter", "greet.Greeter"}, errors.Chain(err))
	assert.True(t, strings.HasPrefix(err.Error(),
		"could not resolve capability greet.Store required by greet.Formatter required by greet.Greeter"))
}

func TestResolveSingleMemoizesPerImplementation(t *testing.T) {
	f := newFixture(t)
	var built atomic.Int32
	f.register(t, "greet.Store", func() store {
		built.Add(1)
		return &memStore{v: "x"}
	})
	f.module("app", map[string]string{
		"META-INF/services/greet.Store": "greet.Store\n",
	})

	r := f.resolver()
	a, err := r.ResolveSingle(context.Background(), "greet.Store")
	require.NoError(t, err)
	b, err := r.ResolveSingle(context.Background(), "greet.Store")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, r.Cached())
}

func TestResolveSinglePublishesIntoCatalog(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("app", map[string]string{
		"META-INF/services/greet.Greeter": "greet.English;lang=en\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	_, err = r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)

	entries := f.cat.Entries("greet.Greeter")
	require.Len(t, entries, 1)
	props := entries[0].Properties()
	assert.Equal(t, "greet.English", props[capability.PropComponentName])
	assert.Equal(t, "app", props[capability.PropModule])
	assert.Equal(t, "en", props["lang"])
	assert.Equal(t, true, props[PropStatic])
	assert.Equal(t, OwnerStatic, entries[0].Owner)
}

func TestResolveSingleUsesLiveCatalogEntries(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("app", map[string]string{
		"META-INF/services/greet.Greeter": "greet.English\n",
	})

	live := &polite{f: upper{}}
	f.cat.Publish("greet.Greeter", live, nil, "external")

	r := f.resolver()
	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Same(t, live, got)
	assert.Equal(t, 0, r.Cached())
}

func TestResolveAllSkipsFailingCandidates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.register(t, "greet.Broken", func() (formatter, error) { return nil, fmt.Errorf("broken") })
	f.register(t, "greet.Lower", func() formatter { return lower{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Formatter": "greet.Upper\ngreet.Broken\n",
	})
	f.module("b", map[string]string{
		"META-INF/services/greet.Formatter": "greet.Lower\n",
	})

	r := f.resolver()
	view, err := r.ResolveAll(context.Background(), "greet.Formatter", true)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Len())

	all := capability.NewMany[formatter](view).Slice()
	require.Len(t, all, 2)
	assert.Equal(t, upper{}, all[0])
	assert.Equal(t, lower{}, all[1])
}

func TestResolveAllViewIsLive(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Formatter": "greet.Upper\n",
	})

	r := f.resolver()
	view, err := r.ResolveAll(context.Background(), "greet.Formatter", false)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Len())

	e := f.cat.Publish("greet.Formatter", lower{}, nil, "external")
	assert.Equal(t, 2, view.Len())

	f.cat.Withdraw(e)
	assert.Equal(t, 1, view.Len())
}

func TestResolveAllNonEmptySurfacesLastFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Broken", func() (formatter, error) { return nil, fmt.Errorf("broken") })
	f.module("a", map[string]string{
		"META-INF/services/greet.Formatter": "greet.Broken\n",
	})

	r := f.resolver()
	view, err := r.ResolveAll(context.Background(), "greet.Formatter", true)
	require.Error(t, err)
	assert.True(t, errors.IsEmptyRequiredCollection(err))
	assert.True(t, errors.IsInstantiationFault(err))
	assert.Equal(t, 0, view.Len())

	view, err = r.ResolveAll(context.Background(), "greet.Formatter", false)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Len())
}

func TestRequiredManyDependencyWithoutProviders(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Chained", func(all capability.Some[formatter]) greeter {
		return &polite{f: &chained{all: all.Many}}
	})
	f.module("a", map[string]string{
		"META-INF/components/greet.Greeter": "greet.Chained\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.IsEmptyRequiredCollection(err))
	assert.Equal(t, []string{"greet.Formatter", "greet.Greeter"}, errors.Chain(err))
}

func TestOptionalManyDependencyWithoutProviders(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Chained", func(all capability.Many[formatter]) greeter {
		return &polite{f: &chained{all: all}}
	})
	f.module("a", map[string]string{
		"META-INF/components/greet.Greeter": "greet.Chained\n",
	})

	r := f.resolver()
	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, "good day bob", got.(greeter).Greet("bob"))

	f.cat.Publish("greet.Formatter", upper{}, nil, "external")
	assert.Equal(t, "GOOD DAY BOB", got.(greeter).Greet("bob"))
}

func TestIndependentDeclarationWithDependenciesIsMalformed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Greeter":   "greet.Polite\n",
		"META-INF/services/greet.Formatter": "greet.Upper\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.IsCapabilityUnresolved(err))
	assert.True(t, errors.IsMalformedDeclaration(err))
}

func TestUnknownImplementationIsMalformed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Greeter": "greet.Missing\ngreet.English\n",
	})

	r := f.resolver()
	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, english{}, got)

	f2 := newFixture(t)
	f2.module("a", map[string]string{
		"META-INF/services/greet.Greeter": "greet.Missing\n",
	})
	_, err = f2.resolver().ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.IsMalformedDeclaration(err))
}

type storeFromGreeter struct{ g greeter }

func (s *storeFromGreeter) Get() string { return s.g.Greet("store") }

func TestCircularDependencyIsDetected(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.StoreFormatter", func(s store) formatter { return upper{} })
	f.register(t, "greet.GreeterStore", func(g greeter) store { return &storeFromGreeter{g: g} })
	f.module("a", map[string]string{
		"META-INF/components/greet.Greeter":   "greet.Polite\n",
		"META-INF/components/greet.Formatter": "greet.StoreFormatter\n",
		"META-INF/components/greet.Store":     "greet.GreeterStore\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.IsCircularDependency(err))
	assert.Contains(t, err.Error(), "greet.Greeter -> greet.Formatter -> greet.Store -> greet.Greeter")
}

func TestDepthLimit(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Polite", func(fm formatter) greeter { return &polite{f: fm} })
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.module("a", map[string]string{
		"META-INF/components/greet.Greeter": "greet.Polite\n",
		"META-INF/services/greet.Formatter": "greet.Upper\n",
	})

	_, err := f.resolver(WithMaxDepth(1)).ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDepthExceededSentinel))

	_, err = f.resolver(WithMaxDepth(2)).ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
}

func TestConcurrentResolutionKeepsOneInstance(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Store", func() store {
		time.Sleep(time.Millisecond)
		return &memStore{v: "x"}
	})
	f.module("a", map[string]string{
		"META-INF/services/greet.Store": "greet.Store\n",
	})
	r := f.resolver()

	const workers = 16
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.ResolveSingle(context.Background(), "greet.Store")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, r.Cached())
	assert.Equal(t, 1, f.cat.Len("greet.Store"))
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Greeter": "greet.English\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.resolver().ResolveSingle(ctx, "greet.Greeter")
	require.ErrorIs(t, err, context.Canceled)
}

type closingStore struct {
	memStore
	closed atomic.Bool
}

func (c *closingStore) Close() error {
	c.closed.Store(true)
	return nil
}

func TestResetWithdrawsAndDisposes(t *testing.T) {
	f := newFixture(t)
	s := &closingStore{memStore: memStore{v: "x"}}
	f.register(t, "greet.Store", func() store { return s })
	f.module("a", map[string]string{
		"META-INF/services/greet.Store": "greet.Store\n",
	})

	r := f.resolver()
	_, err := r.ResolveSingle(context.Background(), "greet.Store")
	require.NoError(t, err)
	require.Equal(t, 1, f.cat.Len("greet.Store"))

	r.Reset()
	assert.Equal(t, 0, f.cat.Len("greet.Store"))
	assert.Equal(t, 0, r.Cached())
	assert.True(t, s.closed.Load())
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.English", func() greeter { return english{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Greeter": "not valid\ngreet.English\n",
	})

	r := f.resolver()
	decls, errs := r.Candidates("greet.Greeter")
	require.Len(t, decls, 1)
	require.Len(t, errs, 1)

	got, err := r.ResolveSingle(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, english{}, got)
}

func TestCandidatesOrderAcrossModules(t *testing.T) {
	f := newFixture(t)
	f.module("a", map[string]string{
		"META-INF/services/greet.Formatter":   "greet.A1\n",
		"META-INF/components/greet.Formatter": "greet.A2\n",
	})
	f.module("b", map[string]string{
		"META-INF/services/greet.Formatter":   "greet.B1\n",
		"META-INF/components/greet.Formatter": "greet.B2\n",
	})

	decls, errs := f.resolver().Candidates("greet.Formatter")
	require.Empty(t, errs)

	var ids []string
	for _, d := range decls {
		ids = append(ids, d.Implementation)
	}
	assert.Equal(t, []string{"greet.A2", "greet.B2", "greet.A1", "greet.B1"}, ids)
}

type recordingRecorder struct {
	mu       sync.Mutex
	observed []string
	hits     int
}

func (r *recordingRecorder) ResolveObserved(mode string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, fmt.Sprintf("%s:%v", mode, err == nil))
}

func (r *recordingRecorder) CacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func TestRecorderAndSpans(t *testing.T) {
	f := newFixture(t)
	f.register(t, "greet.Upper", func() formatter { return upper{} })
	f.module("a", map[string]string{
		"META-INF/services/greet.Formatter": "greet.Upper\n",
	})

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	rec := &recordingRecorder{}

	r := f.resolver(WithTracerProvider(tp), WithRecorder(rec))
	_, err := r.ResolveAll(context.Background(), "greet.Formatter", false)
	require.NoError(t, err)
	_, err = r.ResolveAll(context.Background(), "greet.Formatter", false)
	require.NoError(t, err)
	_, err = r.ResolveSingle(context.Background(), "greet.Greeter")
	require.Error(t, err)

	assert.Equal(t, []string{"all:true", "all:true", "single:false"}, rec.observed)
	assert.Equal(t, 1, rec.hits)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"locator.build", "locator.resolve", "locator.resolve", "locator.resolve"}, names)
}
